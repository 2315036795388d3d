package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMovesForMover(t *testing.T) {
	moves := []Move{
		{Mover: 1, Action: 0, Label: "A"},
		{Mover: 1, Action: 1, Label: "B"},
		{Mover: 2, Action: 0, Label: "C"},
	}

	mine := ExtractMovesForMover(moves, 1)
	assert.Equal(t, []Move{moves[0], moves[1]}, mine)
	assert.Len(t, ExtractMovesForMover(moves, 2), 1)
	assert.Empty(t, ExtractMovesForMover(moves, 3))
}

func TestContains_IgnoresLabel(t *testing.T) {
	moves := []Move{{Mover: 1, Action: 4, Label: "b2"}}

	assert.True(t, Contains(moves, Move{Mover: 1, Action: 4}))
	assert.False(t, Contains(moves, Move{Mover: 2, Action: 4}))
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("no-such-game")
	require.ErrorIs(t, err, ErrUnknownGame)
}

func TestIntField(t *testing.T) {
	snapshot := map[string]any{"a": 3, "b": float64(4), "c": 1.5, "d": "x"}

	n, err := IntField(snapshot, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = IntField(snapshot, "b")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = IntField(snapshot, "c")
	assert.ErrorIs(t, err, ErrBadSnapshot)
	_, err = IntField(snapshot, "d")
	assert.ErrorIs(t, err, ErrBadSnapshot)
	_, err = IntField(snapshot, "missing")
	assert.ErrorIs(t, err, ErrBadSnapshot)
}

func TestIntSliceField(t *testing.T) {
	snapshot := map[string]any{
		"ints":  []int{1, 2},
		"anys":  []any{float64(1), 2},
		"bad":   []any{"x"},
		"plain": 7,
	}

	got, err := IntSliceField(snapshot, "ints")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	got, err = IntSliceField(snapshot, "anys")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	_, err = IntSliceField(snapshot, "bad")
	assert.ErrorIs(t, err, ErrBadSnapshot)
	_, err = IntSliceField(snapshot, "plain")
	assert.ErrorIs(t, err, ErrBadSnapshot)
}
