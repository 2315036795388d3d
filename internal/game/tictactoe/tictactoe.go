// Package tictactoe is a 3x3 alternating-move game used to exercise agents.
package tictactoe

import (
	"fmt"

	"github.com/cartridge/agentbridge/internal/game"
)

// Name is the registry key.
const Name = "tictactoe"

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

func init() {
	game.Register(Name, func() game.Game { return Game{} })
}

// Game implements game.Game.
type Game struct{}

var _ game.Game = Game{}

func (Game) Name() string                { return Name }
func (Game) Players() int                { return 2 }
func (Game) IsAlternatingMoveGame() bool { return true }

func (Game) NewContext() game.Context {
	return &State{Mover: 1}
}

// Moves returns the empty cells for the player to move.
func (Game) Moves(ctx game.Context) []game.Move {
	s, ok := ctx.(*State)
	if !ok || s.Over() {
		return nil
	}
	moves := make([]game.Move, 0, 9)
	for cell, owner := range s.Board {
		if owner == 0 {
			moves = append(moves, game.Move{Mover: s.Mover, Action: cell, Label: cellLabel(cell)})
		}
	}
	return moves
}

func (g Game) Apply(ctx game.Context, moves ...game.Move) error {
	s, ok := ctx.(*State)
	if !ok {
		return fmt.Errorf("tictactoe: unexpected context %T", ctx)
	}
	if len(moves) != 1 {
		return fmt.Errorf("tictactoe: want 1 move, got %d", len(moves))
	}
	m := moves[0]
	if s.Over() || m.Mover != s.Mover || m.Action < 0 || m.Action > 8 || s.Board[m.Action] != 0 {
		return fmt.Errorf("%w: %s", game.ErrIllegalMove, m)
	}
	s.Board[m.Action] = m.Mover
	s.Winner = winner(s.Board)
	s.Mover = 3 - s.Mover
	return nil
}

func (Game) Restore(snapshot map[string]any) (game.Context, error) {
	board, err := game.IntSliceField(snapshot, "board")
	if err != nil {
		return nil, err
	}
	if len(board) != 9 {
		return nil, fmt.Errorf("%w: board has %d cells", game.ErrBadSnapshot, len(board))
	}
	mover, err := game.IntField(snapshot, "mover")
	if err != nil {
		return nil, err
	}
	s := &State{Mover: mover}
	copy(s.Board[:], board)
	s.Winner = winner(s.Board)
	return s, nil
}

// State is the board plus the player to move. Cells hold 0 (empty), 1 or 2.
type State struct {
	Board  [9]int
	Mover  int
	Winner int
}

func (s *State) Movers() []int {
	if s.Over() {
		return nil
	}
	return []int{s.Mover}
}

func (s *State) Over() bool {
	if s.Winner != 0 {
		return true
	}
	for _, owner := range s.Board {
		if owner == 0 {
			return false
		}
	}
	return true
}

func (s *State) Utility(player int) float64 {
	switch s.Winner {
	case 0:
		return 0.5
	case player:
		return 1
	default:
		return 0
	}
}

func (s *State) Clone() game.Context {
	c := *s
	return &c
}

func (s *State) Snapshot() map[string]any {
	return map[string]any{
		"board": game.IntsToAny(s.Board[:]),
		"mover": s.Mover,
	}
}

func winner(board [9]int) int {
	for _, l := range lines {
		if p := board[l[0]]; p != 0 && p == board[l[1]] && p == board[l[2]] {
			return p
		}
	}
	return 0
}

func cellLabel(cell int) string {
	return fmt.Sprintf("%c%d", 'a'+cell%3, cell/3+1)
}
