package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/game/rps"
	"github.com/cartridge/agentbridge/internal/game/tictactoe"
)

func TestGameDescriptor(t *testing.T) {
	d, err := DecodeGame(EncodeGame(rps.New(3)))
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Name: rps.Name, Players: 2, Alternating: false}, d)
}

func TestContextCarriesLegalMovesAndState(t *testing.T) {
	g := tictactoe.Game{}
	ctx := g.NewContext()
	require.NoError(t, g.Apply(ctx, game.Move{Mover: 1, Action: 4}))

	v, err := EncodeContext(g, ctx)
	require.NoError(t, err)
	view, err := DecodeContext(v)
	require.NoError(t, err)

	assert.Equal(t, []int{2}, view.Movers)
	assert.False(t, view.Over)
	assert.Equal(t, g.Moves(ctx), view.LegalMoves)

	restored, err := g.Restore(view.State)
	require.NoError(t, err)
	assert.Equal(t, ctx, restored)
}

func TestDecodeMove(t *testing.T) {
	m := game.Move{Mover: 2, Action: 7, Label: "b3"}
	got, err := DecodeMove(EncodeMove(m))
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeMove_Failures(t *testing.T) {
	cases := []struct {
		name string
		v    *structpb.Value
		want error
	}{
		{"nil", nil, ErrIllegalMove},
		{"null", structpb.NewNullValue(), ErrIllegalMove},
		{"string", structpb.NewStringValue("b2"), ErrTypeMismatch},
		{"missing action", mustValue(t, map[string]any{"mover": 1}), ErrTypeMismatch},
		{"fractional", mustValue(t, map[string]any{"mover": 1, "action": 1.5}), ErrTypeMismatch},
		{"label type", mustValue(t, map[string]any{"mover": 1, "action": 1, "label": 3}), ErrTypeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeMove(tc.v)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEncodeContext_RejectsUnencodableSnapshot(t *testing.T) {
	_, err := EncodeContext(tictactoe.Game{}, badContext{})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDecodeContext_RejectsMalformed(t *testing.T) {
	_, err := DecodeContext(mustValue(t, map[string]any{"over": false, "movers": "1"}))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestAsIntAcceptsLargeExactIntegers(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want int
	}{
		{"int32 max", math.MaxInt32, math.MaxInt32},
		{"past int32", math.MaxInt32 + 1, math.MaxInt32 + 1},
		{"exact limit", MaxExactInt, MaxExactInt},
		{"negative", -1, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AsInt(structpb.NewNumberValue(tc.in), "n")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAsIntRejects(t *testing.T) {
	for _, f := range []float64{1.5, math.Inf(1), math.NaN(), 2 * MaxExactInt} {
		_, err := AsInt(structpb.NewNumberValue(f), "n")
		assert.ErrorIs(t, err, ErrTypeMismatch, "%v", f)
	}
}

func TestCountClampsToExactRange(t *testing.T) {
	got, err := AsInt(Count(math.MaxInt), "max_iterations")
	require.NoError(t, err)
	assert.Equal(t, MaxExactInt, got)

	got, err = AsInt(Count(math.MinInt), "max_depth")
	require.NoError(t, err)
	assert.Equal(t, -MaxExactInt, got)

	got, err = AsInt(Count(500), "max_iterations")
	require.NoError(t, err)
	assert.Equal(t, 500, got)
}

func mustValue(t *testing.T, v any) *structpb.Value {
	t.Helper()
	value, err := structpb.NewValue(v)
	require.NoError(t, err)
	return value
}

type badContext struct{}

func (badContext) Movers() []int           { return []int{1} }
func (badContext) Over() bool              { return false }
func (badContext) Utility(int) float64     { return 0.5 }
func (badContext) Clone() game.Context     { return badContext{} }
func (badContext) Snapshot() map[string]any { return map[string]any{"ch": make(chan int)} }
