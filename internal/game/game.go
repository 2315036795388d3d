// Package game describes the host-side values a decision agent consumes: the game
// descriptor, the mutable game context and the moves drawn from it.
package game

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	// ErrUnknownGame is returned by Lookup for names nobody registered.
	ErrUnknownGame = errors.New("unknown game")
	// ErrIllegalMove is returned by Apply when a move is not legal in the context.
	ErrIllegalMove = errors.New("illegal move")
	// ErrBadSnapshot is returned by Restore when a snapshot cannot be decoded.
	ErrBadSnapshot = errors.New("bad snapshot")
)

// Move is one legal action. Players are numbered from 1.
type Move struct {
	Mover  int    `json:"mover"`
	Action int    `json:"action"`
	Label  string `json:"label,omitempty"`
}

// Equal compares moves by mover and action; the label is display only.
func (m Move) Equal(other Move) bool {
	return m.Mover == other.Mover && m.Action == other.Action
}

func (m Move) String() string {
	if m.Label != "" {
		return fmt.Sprintf("P%d:%s", m.Mover, m.Label)
	}
	return fmt.Sprintf("P%d:%d", m.Mover, m.Action)
}

// Game is the immutable ruleset descriptor.
type Game interface {
	Name() string
	Players() int
	// IsAlternatingMoveGame reports whether exactly one player acts per turn.
	IsAlternatingMoveGame() bool
	NewContext() Context
	// Moves returns the full legal set for the context. For simultaneous-move games
	// it holds the moves of every player that must act.
	Moves(ctx Context) []Move
	// Apply advances the context. Alternating games take one move, simultaneous
	// games take one move per mover.
	Apply(ctx Context, moves ...Move) error
	// Restore rebuilds a context from a Snapshot, possibly after it crossed a
	// process boundary (numbers may come back as float64).
	Restore(snapshot map[string]any) (Context, error)
}

// Context is a snapshot of the current position.
type Context interface {
	// Movers lists the players that must act now.
	Movers() []int
	Over() bool
	// Utility is 1 for a win, 0 for a loss and 0.5 for a draw or an undecided position.
	Utility(player int) float64
	Clone() Context
	Snapshot() map[string]any
}

// ExtractMovesForMover keeps only the moves attributed to player.
func ExtractMovesForMover(moves []Move, player int) []Move {
	out := make([]Move, 0, len(moves))
	for _, m := range moves {
		if m.Mover == player {
			out = append(out, m)
		}
	}
	return out
}

// Contains reports whether m is in moves.
func Contains(moves []Move, m Move) bool {
	for _, candidate := range moves {
		if candidate.Equal(m) {
			return true
		}
	}
	return false
}

// Factory constructs a fresh game descriptor.
type Factory func() Game

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a game available by name to Lookup. Registering the same name twice
// replaces the earlier factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Lookup returns a new game for a registered name.
func Lookup(name string) (Game, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, name)
	}
	return factory(), nil
}

// Names lists registered games in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntField reads an integral number from a snapshot. Values that crossed the boundary
// arrive as float64, in-process ones as int.
func IntField(snapshot map[string]any, key string) (int, error) {
	v, ok := snapshot[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrBadSnapshot, key)
	}
	n, ok := AsInt(v)
	if !ok {
		return 0, fmt.Errorf("%w: %q is %T, want integer", ErrBadSnapshot, key, v)
	}
	return n, nil
}

// IntSliceField reads a list of integral numbers from a snapshot.
func IntSliceField(snapshot map[string]any, key string) ([]int, error) {
	v, ok := snapshot[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrBadSnapshot, key)
	}
	switch list := v.(type) {
	case []int:
		return append([]int(nil), list...), nil
	case []any:
		out := make([]int, len(list))
		for i, item := range list {
			n, ok := AsInt(item)
			if !ok {
				return nil, fmt.Errorf("%w: %q[%d] is %T, want integer", ErrBadSnapshot, key, i, item)
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q is %T, want list", ErrBadSnapshot, key, v)
	}
}

// AsInt converts int-like and integral float values.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// IntsToAny widens an int slice so it can be stored in a snapshot.
func IntsToAny(ints []int) []any {
	out := make([]any, len(ints))
	for i, n := range ints {
		out[i] = n
	}
	return out
}
