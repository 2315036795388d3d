package policy

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/cartridge/agentbridge/internal/game"
)

// UniformRandom picks uniformly among the legal moves of its player. It draws from the
// math/rand/v2 global source, which is safe for concurrent use and not shared-seeded.
type UniformRandom struct {
	playerID int
	ready    bool
}

// NewUniformRandom returns an uninitialised baseline strategy.
func NewUniformRandom() *UniformRandom { return &UniformRandom{} }

func (*UniformRandom) Name() string { return "baseline" }

func (p *UniformRandom) Init(_ context.Context, _ game.Game, playerID int) error {
	p.playerID = playerID
	p.ready = true
	return nil
}

func (p *UniformRandom) SelectAction(_ context.Context, g game.Game, c game.Context, _ Budget) (game.Move, error) {
	if !p.ready {
		return game.Move{}, ErrNotInitialized
	}
	legal := LegalFor(g, c, p.playerID)
	if len(legal) == 0 {
		return game.Move{}, fmt.Errorf("%w %d", ErrNoLegalMoves, p.playerID)
	}
	return legal[rand.IntN(len(legal))], nil
}
