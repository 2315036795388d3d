// Package rps is rock-paper-scissors played over a fixed number of rounds. Both players
// move in every round, which makes it the reference simultaneous-move game.
package rps

import (
	"fmt"

	"github.com/cartridge/agentbridge/internal/game"
)

// Name is the registry key.
const Name = "rps"

const (
	Rock = iota
	Paper
	Scissors
)

var labels = [3]string{"rock", "paper", "scissors"}

func init() {
	game.Register(Name, func() game.Game { return New(3) })
}

// Game implements game.Game.
type Game struct {
	Rounds int
}

var _ game.Game = Game{}

// New returns a match of the given number of rounds.
func New(rounds int) Game {
	if rounds <= 0 {
		rounds = 1
	}
	return Game{Rounds: rounds}
}

func (Game) Name() string                { return Name }
func (Game) Players() int                { return 2 }
func (Game) IsAlternatingMoveGame() bool { return false }

func (g Game) NewContext() game.Context {
	return &State{Rounds: g.Rounds}
}

// Moves returns three throws for each player.
func (Game) Moves(ctx game.Context) []game.Move {
	s, ok := ctx.(*State)
	if !ok || s.Over() {
		return nil
	}
	moves := make([]game.Move, 0, 6)
	for player := 1; player <= 2; player++ {
		for throw := Rock; throw <= Scissors; throw++ {
			moves = append(moves, game.Move{Mover: player, Action: throw, Label: labels[throw]})
		}
	}
	return moves
}

func (Game) Apply(ctx game.Context, moves ...game.Move) error {
	s, ok := ctx.(*State)
	if !ok {
		return fmt.Errorf("rps: unexpected context %T", ctx)
	}
	if s.Over() {
		return fmt.Errorf("%w: match is over", game.ErrIllegalMove)
	}
	var throws [3]int
	seen := [3]bool{}
	for _, m := range moves {
		if m.Mover < 1 || m.Mover > 2 || m.Action < Rock || m.Action > Scissors || seen[m.Mover] {
			return fmt.Errorf("%w: %s", game.ErrIllegalMove, m)
		}
		seen[m.Mover] = true
		throws[m.Mover] = m.Action
	}
	if !seen[1] || !seen[2] {
		return fmt.Errorf("rps: want one move per player, got %d", len(moves))
	}
	switch beats(throws[1], throws[2]) {
	case 1:
		s.Score[0]++
	case -1:
		s.Score[1]++
	}
	s.Round++
	return nil
}

func (Game) Restore(snapshot map[string]any) (game.Context, error) {
	rounds, err := game.IntField(snapshot, "rounds")
	if err != nil {
		return nil, err
	}
	round, err := game.IntField(snapshot, "round")
	if err != nil {
		return nil, err
	}
	score, err := game.IntSliceField(snapshot, "score")
	if err != nil {
		return nil, err
	}
	if len(score) != 2 {
		return nil, fmt.Errorf("%w: score has %d entries", game.ErrBadSnapshot, len(score))
	}
	return &State{Rounds: rounds, Round: round, Score: [2]int{score[0], score[1]}}, nil
}

// beats returns 1 when a wins, -1 when b wins and 0 on a tie.
func beats(a, b int) int {
	switch {
	case a == b:
		return 0
	case (a+1)%3 == b:
		return -1
	default:
		return 1
	}
}

// State tracks completed rounds and the score of each player.
type State struct {
	Rounds int
	Round  int
	Score  [2]int
}

func (s *State) Movers() []int {
	if s.Over() {
		return nil
	}
	return []int{1, 2}
}

func (s *State) Over() bool { return s.Round >= s.Rounds }

func (s *State) Utility(player int) float64 {
	if player < 1 || player > 2 {
		return 0
	}
	mine, theirs := s.Score[player-1], s.Score[2-player]
	switch {
	case mine > theirs:
		return 1
	case mine < theirs:
		return 0
	default:
		return 0.5
	}
}

func (s *State) Clone() game.Context {
	c := *s
	return &c
}

func (s *State) Snapshot() map[string]any {
	return map[string]any{
		"rounds": s.Rounds,
		"round":  s.Round,
		"score":  game.IntsToAny(s.Score[:]),
	}
}
