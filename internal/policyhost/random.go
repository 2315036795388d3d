package policyhost

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/policyrpc"
	"github.com/cartridge/agentbridge/internal/wire"
)

// Random picks uniformly among the legal moves it is sent.
type Random struct {
	player int
}

// NewRandom returns an uninitialised Random policy.
func NewRandom() *Random { return &Random{} }

func (r *Random) InitAI(_ wire.Descriptor, playerID int) error {
	r.player = playerID
	return nil
}

func (r *Random) SelectAction(_ context.Context, sel policyrpc.Selection) (game.Move, error) {
	moves := movesFor(sel, r.player)
	if len(moves) == 0 {
		return game.Move{}, fmt.Errorf("no legal moves for player %d", r.player)
	}
	return moves[rand.IntN(len(moves))], nil
}

// movesFor returns the legal moves player may choose from.
func movesFor(sel policyrpc.Selection, player int) []game.Move {
	if sel.Game.Alternating {
		return sel.Context.LegalMoves
	}
	return game.ExtractMovesForMover(sel.Context.LegalMoves, player)
}
