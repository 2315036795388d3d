package policyhost

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/policyrpc"
	"github.com/cartridge/agentbridge/internal/wire"
)

const (
	// DefaultIterations bounds a search whose budget sets neither time nor iterations.
	DefaultIterations = 1000
	maxRolloutPlies   = 10000
)

// maxDeadlineSeconds is the longest time budget a time.Duration can hold. Longer,
// infinite or NaN budgets set no deadline.
var maxDeadlineSeconds = float64(math.MaxInt64) / float64(time.Second)

// UCT is Monte-Carlo tree search with UCB1 selection and uniform random rollouts. It
// needs the rules of the game, so it only searches games registered in package game;
// for anything else it plays uniformly among the legal moves it was sent.
type UCT struct {
	Exploration float64

	player int
	rules  game.Game
}

// NewUCT returns an uninitialised UCT policy with exploration constant sqrt(2).
func NewUCT() *UCT {
	return &UCT{Exploration: math.Sqrt2}
}

func (u *UCT) InitAI(g wire.Descriptor, playerID int) error {
	if playerID < 1 || (g.Players > 0 && playerID > g.Players) {
		return fmt.Errorf("player %d out of range for %s", playerID, g.Name)
	}
	u.player = playerID
	u.rules = nil
	if rules, err := game.Lookup(g.Name); err == nil {
		u.rules = rules
	}
	return nil
}

func (u *UCT) SelectAction(ctx context.Context, sel policyrpc.Selection) (game.Move, error) {
	own := movesFor(sel, u.player)
	switch len(own) {
	case 0:
		return game.Move{}, fmt.Errorf("no legal moves for player %d", u.player)
	case 1:
		return own[0], nil
	}
	if u.rules == nil {
		return own[rand.IntN(len(own))], nil
	}
	root, err := u.rules.Restore(sel.Context.State)
	if err != nil {
		return own[rand.IntN(len(own))], nil
	}

	b := newSearchBudget(sel)
	if u.rules.IsAlternatingMoveGame() {
		return u.searchTree(ctx, root, own, b)
	}
	return u.searchRoot(ctx, root, own, b)
}

type searchBudget struct {
	deadline   time.Time
	iterations int
	depth      int
}

func newSearchBudget(sel policyrpc.Selection) searchBudget {
	b := searchBudget{iterations: sel.MaxIterations, depth: sel.MaxDepth}
	if s := sel.MaxSeconds; s > 0 && s < maxDeadlineSeconds {
		b.deadline = time.Now().Add(time.Duration(s * float64(time.Second)))
	}
	if b.iterations <= 0 && b.deadline.IsZero() {
		b.iterations = DefaultIterations
	}
	return b
}

func (b searchBudget) exhausted(ctx context.Context, done int) bool {
	if b.iterations > 0 && done >= b.iterations {
		return true
	}
	if !b.deadline.IsZero() && !time.Now().Before(b.deadline) {
		return true
	}
	return ctx.Err() != nil
}

type node struct {
	parent   *node
	move     game.Move
	state    game.Context
	untried  []game.Move
	children []*node
	visits   float64
	// value sums the utility of move.Mover over all visits.
	value float64
}

func (n *node) bestChild(c float64) *node {
	var (
		best      *node
		bestScore = math.Inf(-1)
	)
	logN := math.Log(n.visits)
	for _, child := range n.children {
		score := child.value/child.visits + c*math.Sqrt(logN/child.visits)
		if score > bestScore {
			best, bestScore = child, score
		}
	}
	return best
}

func (u *UCT) searchTree(ctx context.Context, root game.Context, own []game.Move, b searchBudget) (game.Move, error) {
	tree := &node{state: root, untried: append([]game.Move(nil), own...)}

	for done := 0; !b.exhausted(ctx, done); done++ {
		n := tree
		for len(n.untried) == 0 && len(n.children) > 0 {
			n = n.bestChild(u.Exploration)
		}
		if len(n.untried) > 0 {
			i := rand.IntN(len(n.untried))
			m := n.untried[i]
			n.untried[i] = n.untried[len(n.untried)-1]
			n.untried = n.untried[:len(n.untried)-1]

			next := n.state.Clone()
			if err := u.rules.Apply(next, m); err != nil {
				return game.Move{}, fmt.Errorf("expand %s: %w", m, err)
			}
			child := &node{parent: n, move: m, state: next, untried: u.rules.Moves(next)}
			n.children = append(n.children, child)
			n = child
		}

		sim := n.state.Clone()
		if err := rollout(u.rules, sim, b.depth); err != nil {
			return game.Move{}, err
		}
		for ; n != nil; n = n.parent {
			n.visits++
			if n.parent != nil {
				n.value += sim.Utility(n.move.Mover)
			}
		}
	}

	if len(tree.children) == 0 {
		return own[rand.IntN(len(own))], nil
	}
	best := tree.children[0]
	for _, child := range tree.children[1:] {
		if child.visits > best.visits || (child.visits == best.visits && child.value > best.value) {
			best = child
		}
	}
	return best.move, nil
}

type arm struct {
	visits float64
	value  float64
}

// searchRoot runs a UCB1 bandit over the agent's own moves, completing each joint move
// with uniformly random moves for the other players.
func (u *UCT) searchRoot(ctx context.Context, root game.Context, own []game.Move, b searchBudget) (game.Move, error) {
	arms := make([]arm, len(own))
	total := 0.0

	for done := 0; !b.exhausted(ctx, done); done++ {
		pick := -1
		bestScore := math.Inf(-1)
		for i, a := range arms {
			if a.visits == 0 {
				pick = i
				break
			}
			score := a.value/a.visits + u.Exploration*math.Sqrt(math.Log(total)/a.visits)
			if score > bestScore {
				pick, bestScore = i, score
			}
		}

		sim := root.Clone()
		joint := []game.Move{own[pick]}
		legal := u.rules.Moves(sim)
		for _, p := range sim.Movers() {
			if p == u.player {
				continue
			}
			theirs := game.ExtractMovesForMover(legal, p)
			if len(theirs) > 0 {
				joint = append(joint, theirs[rand.IntN(len(theirs))])
			}
		}
		if err := u.rules.Apply(sim, joint...); err != nil {
			return game.Move{}, fmt.Errorf("apply %v: %w", joint, err)
		}
		if err := rollout(u.rules, sim, b.depth); err != nil {
			return game.Move{}, err
		}
		arms[pick].visits++
		arms[pick].value += sim.Utility(u.player)
		total++
	}

	best := 0
	for i := range arms[1:] {
		if arms[i+1].visits > arms[best].visits {
			best = i + 1
		}
	}
	return own[best], nil
}

// rollout plays uniformly random moves until the game ends or maxDepth plies were
// played. A non-positive maxDepth means no limit.
func rollout(rules game.Game, sim game.Context, maxDepth int) error {
	for depth := 0; !sim.Over() && depth < maxRolloutPlies; depth++ {
		if maxDepth > 0 && depth >= maxDepth {
			return nil
		}
		legal := rules.Moves(sim)
		if len(legal) == 0 {
			return nil
		}
		var joint []game.Move
		if rules.IsAlternatingMoveGame() {
			joint = []game.Move{legal[rand.IntN(len(legal))]}
		} else {
			for _, p := range sim.Movers() {
				theirs := game.ExtractMovesForMover(legal, p)
				if len(theirs) > 0 {
					joint = append(joint, theirs[rand.IntN(len(theirs))])
				}
			}
		}
		if err := rules.Apply(sim, joint...); err != nil {
			return fmt.Errorf("rollout: %w", err)
		}
	}
	return nil
}
