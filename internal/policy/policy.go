// Package policy holds the move-selection strategies a decision agent can run: a local
// uniform-random baseline and a delegate living in the external policy runtime.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/cartridge/agentbridge/internal/bootstrap"
	"github.com/cartridge/agentbridge/internal/config"
	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/wire"
)

var (
	// ErrNotInitialized is returned by SelectAction before a successful Init.
	ErrNotInitialized = errors.New("select action before init")
	// ErrDelegateConstruction marks a failure to build or initialise a delegate.
	ErrDelegateConstruction = errors.New("policy delegate construction failed")
	// ErrIllegalMove marks a decision that did not produce a usable move.
	ErrIllegalMove = wire.ErrIllegalMove
	// ErrNoLegalMoves is the ErrIllegalMove raised when the mover has nothing to play.
	ErrNoLegalMoves = fmt.Errorf("%w: no legal moves for player", ErrIllegalMove)
	// ErrTypeMismatch and ErrBootstrap are re-exported for callers that only import
	// this package.
	ErrTypeMismatch = wire.ErrTypeMismatch
	ErrBootstrap    = bootstrap.ErrBootstrap
)

// Budget is the advisory ceiling of one decision. Non-positive fields are unset.
type Budget struct {
	MaxSeconds    float64
	MaxIterations int
	MaxDepth      int
}

// Strategy selects moves for one player of one match at a time.
type Strategy interface {
	Name() string
	// Init prepares the strategy for playerID in g, discarding any previous state.
	Init(ctx context.Context, g game.Game, playerID int) error
	SelectAction(ctx context.Context, g game.Game, c game.Context, b Budget) (game.Move, error)
}

// New builds a strategy by config name. Delegated strategies share rt.
func New(kind string, rt *bootstrap.Runtime, opts ...DelegatedOption) (Strategy, error) {
	switch kind {
	case config.AgentBaseline:
		return NewUniformRandom(), nil
	case config.AgentDelegated:
		return NewDelegated(rt, opts...), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
}

// LegalFor returns the moves player may choose in c: every legal move in an alternating
// game, only player's own moves otherwise.
func LegalFor(g game.Game, c game.Context, player int) []game.Move {
	moves := g.Moves(c)
	if g.IsAlternatingMoveGame() {
		return moves
	}
	return game.ExtractMovesForMover(moves, player)
}
