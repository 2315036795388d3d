package tictactoe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/agentbridge/internal/game"
)

func TestRegistered(t *testing.T) {
	g, err := game.Lookup(Name)
	require.NoError(t, err)
	assert.True(t, g.IsAlternatingMoveGame())
	assert.Equal(t, 2, g.Players())
}

func TestMovesAndApply(t *testing.T) {
	g := Game{}
	ctx := g.NewContext()

	moves := g.Moves(ctx)
	require.Len(t, moves, 9)
	for _, m := range moves {
		assert.Equal(t, 1, m.Mover)
	}

	require.NoError(t, g.Apply(ctx, game.Move{Mover: 1, Action: 4}))
	assert.Equal(t, []int{2}, ctx.Movers())
	assert.Len(t, g.Moves(ctx), 8)

	// Occupied cell and wrong mover are both rejected.
	assert.ErrorIs(t, g.Apply(ctx, game.Move{Mover: 2, Action: 4}), game.ErrIllegalMove)
	assert.ErrorIs(t, g.Apply(ctx, game.Move{Mover: 1, Action: 0}), game.ErrIllegalMove)
}

func TestWinner(t *testing.T) {
	g := Game{}
	ctx := g.NewContext()
	for _, m := range []game.Move{
		{Mover: 1, Action: 0}, {Mover: 2, Action: 3},
		{Mover: 1, Action: 1}, {Mover: 2, Action: 4},
		{Mover: 1, Action: 2},
	} {
		require.NoError(t, g.Apply(ctx, m))
	}

	assert.True(t, ctx.Over())
	assert.Empty(t, ctx.Movers())
	assert.Empty(t, g.Moves(ctx))
	assert.Equal(t, 1.0, ctx.Utility(1))
	assert.Equal(t, 0.0, ctx.Utility(2))
}

func TestSnapshotRestore(t *testing.T) {
	g := Game{}
	ctx := g.NewContext()
	require.NoError(t, g.Apply(ctx, game.Move{Mover: 1, Action: 8}))

	// Simulate numbers coming back as float64 from the boundary.
	snapshot := map[string]any{
		"board": []any{0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 1.0},
		"mover": 2.0,
	}
	restored, err := g.Restore(snapshot)
	require.NoError(t, err)
	assert.Equal(t, ctx, restored)

	_, err = g.Restore(map[string]any{"board": []any{1.0}, "mover": 1})
	assert.ErrorIs(t, err, game.ErrBadSnapshot)
}

func TestCloneIsIndependent(t *testing.T) {
	g := Game{}
	ctx := g.NewContext()
	clone := ctx.Clone()
	require.NoError(t, g.Apply(clone, game.Move{Mover: 1, Action: 0}))

	assert.Len(t, g.Moves(ctx), 9)
	assert.Len(t, g.Moves(clone), 8)
}
