package policyhost

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/game/rps"
	"github.com/cartridge/agentbridge/internal/game/tictactoe"
	"github.com/cartridge/agentbridge/internal/policyrpc"
	"github.com/cartridge/agentbridge/internal/wire"
)

// board returns a tictactoe position with player 1 to move.
func board(cells [9]int) game.Context {
	return &tictactoe.State{Board: cells, Mover: 1}
}

func TestUCTTakesImmediateWin(t *testing.T) {
	u := NewUCT()
	require.NoError(t, u.InitAI(wire.Descriptor{Name: tictactoe.Name, Players: 2, Alternating: true}, 1))

	// X X .
	// O O .
	// . . .
	sel := tictactoeSelection("d", board([9]int{1, 1, 0, 2, 2, 0, 0, 0, 0}))
	sel.MaxIterations = 2000
	move, err := u.SelectAction(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, 2, move.Action)
	assert.Equal(t, 1, move.Mover)
}

func TestUCTSingleMoveShortCircuits(t *testing.T) {
	u := NewUCT()
	require.NoError(t, u.InitAI(wire.Descriptor{Name: tictactoe.Name, Players: 2, Alternating: true}, 1))

	sel := tictactoeSelection("d", board([9]int{1, 2, 1, 2, 2, 1, 0, 1, 2}))
	require.Len(t, sel.Context.LegalMoves, 1)
	move, err := u.SelectAction(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, 6, move.Action)
}

func TestUCTRespectsTimeBudget(t *testing.T) {
	u := NewUCT()
	require.NoError(t, u.InitAI(wire.Descriptor{Name: tictactoe.Name, Players: 2, Alternating: true}, 1))

	sel := tictactoeSelection("d", tictactoe.Game{}.NewContext())
	sel.MaxIterations = -1
	sel.MaxSeconds = 0.05
	start := time.Now()
	move, err := u.SelectAction(context.Background(), sel)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, game.Contains(sel.Context.LegalMoves, move))
}

func TestUCTUnboundedSecondsKeepIterationCap(t *testing.T) {
	for _, seconds := range []float64{1e10, math.Inf(1), math.NaN()} {
		b := newSearchBudget(policyrpc.Selection{MaxSeconds: seconds, MaxIterations: 2000})
		assert.True(t, b.deadline.IsZero(), "%v", seconds)
		assert.Equal(t, 2000, b.iterations)

		u := NewUCT()
		require.NoError(t, u.InitAI(wire.Descriptor{Name: tictactoe.Name, Players: 2, Alternating: true}, 1))
		sel := tictactoeSelection("d", board([9]int{1, 1, 0, 2, 2, 0, 0, 0, 0}))
		sel.MaxSeconds = seconds
		sel.MaxIterations = 2000
		move, err := u.SelectAction(context.Background(), sel)
		require.NoError(t, err)
		assert.Equal(t, 2, move.Action, "%v", seconds)
	}

	b := newSearchBudget(policyrpc.Selection{MaxSeconds: math.Inf(1)})
	assert.Equal(t, DefaultIterations, b.iterations)
}

func TestUCTSimultaneousReturnsOwnMove(t *testing.T) {
	g := rps.New(3)
	state := g.NewContext()
	sel := policyrpc.Selection{
		Game: wire.Descriptor{Name: rps.Name, Players: 2, Alternating: false},
		Context: wire.ContextView{
			Movers:     state.Movers(),
			State:      state.Snapshot(),
			LegalMoves: g.Moves(state),
		},
		MaxIterations: 300,
	}

	for _, player := range []int{1, 2} {
		u := NewUCT()
		require.NoError(t, u.InitAI(sel.Game, player))
		move, err := u.SelectAction(context.Background(), sel)
		require.NoError(t, err)
		assert.Equal(t, player, move.Mover)
	}
}

func TestUCTUnknownGameFallsBackToLegalMove(t *testing.T) {
	u := NewUCT()
	desc := wire.Descriptor{Name: "go", Players: 2, Alternating: true}
	require.NoError(t, u.InitAI(desc, 2))

	legal := []game.Move{{Mover: 2, Action: 7}, {Mover: 2, Action: 9}}
	sel := policyrpc.Selection{Game: desc, Context: wire.ContextView{Movers: []int{2}, LegalMoves: legal}}
	move, err := u.SelectAction(context.Background(), sel)
	require.NoError(t, err)
	assert.True(t, game.Contains(legal, move))
}

func TestUCTNoLegalMoves(t *testing.T) {
	u := NewUCT()
	desc := wire.Descriptor{Name: tictactoe.Name, Players: 2, Alternating: true}
	require.NoError(t, u.InitAI(desc, 1))
	_, err := u.SelectAction(context.Background(), policyrpc.Selection{Game: desc})
	assert.Error(t, err)
}

func TestUCTInitRejectsBadPlayer(t *testing.T) {
	desc := wire.Descriptor{Name: tictactoe.Name, Players: 2, Alternating: true}
	assert.Error(t, NewUCT().InitAI(desc, 0))
	assert.Error(t, NewUCT().InitAI(desc, 3))
}

func TestRandomFiltersSimultaneousMoves(t *testing.T) {
	r := NewRandom()
	desc := wire.Descriptor{Name: rps.Name, Players: 2}
	require.NoError(t, r.InitAI(desc, 2))

	g := rps.New(1)
	state := g.NewContext()
	sel := policyrpc.Selection{Game: desc, Context: wire.ContextView{LegalMoves: g.Moves(state)}}
	for i := 0; i < 50; i++ {
		move, err := r.SelectAction(context.Background(), sel)
		require.NoError(t, err)
		assert.Equal(t, 2, move.Mover)
	}
}

func TestRolloutHonoursDepth(t *testing.T) {
	g := tictactoe.Game{}
	sim := g.NewContext()
	require.NoError(t, rollout(g, sim, 2))
	filled := 0
	for _, c := range sim.(*tictactoe.State).Board {
		if c != 0 {
			filled++
		}
	}
	assert.Equal(t, 2, filled)
}
