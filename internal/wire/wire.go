// Package wire converts host game values to and from the structpb representation that
// crosses the policy boundary.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cartridge/agentbridge/internal/game"
)

var (
	// ErrTypeMismatch marks a value that could not be converted between the host and
	// the boundary representation.
	ErrTypeMismatch = errors.New("type mismatch at policy boundary")
	// ErrIllegalMove marks a returned value that does not denote a move at all.
	ErrIllegalMove = errors.New("illegal move contract")
)

// MaxExactInt is the largest integer magnitude a boundary number carries exactly.
const MaxExactInt = 1 << 53

// Descriptor is the boundary view of a game.Game.
type Descriptor struct {
	Name        string
	Players     int
	Alternating bool
}

// ContextView is the boundary view of a game.Context together with its legal moves.
type ContextView struct {
	Movers     []int
	Over       bool
	State      map[string]any
	LegalMoves []game.Move
}

// EncodeGame describes g.
func EncodeGame(g game.Game) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"name":        structpb.NewStringValue(g.Name()),
		"players":     structpb.NewNumberValue(float64(g.Players())),
		"alternating": structpb.NewBoolValue(g.IsAlternatingMoveGame()),
	}})
}

// DecodeGame reads a value produced by EncodeGame.
func DecodeGame(v *structpb.Value) (Descriptor, error) {
	s, err := asStruct(v, "game")
	if err != nil {
		return Descriptor{}, err
	}
	name, err := stringField(s, "name")
	if err != nil {
		return Descriptor{}, err
	}
	players, err := intField(s, "players")
	if err != nil {
		return Descriptor{}, err
	}
	alternating, err := boolField(s, "alternating")
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Name: name, Players: players, Alternating: alternating}, nil
}

// EncodeContext snapshots ctx together with the full legal-move set computed by g.
func EncodeContext(g game.Game, ctx game.Context) (*structpb.Value, error) {
	state, err := structpb.NewStruct(ctx.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("%w: context snapshot: %v", ErrTypeMismatch, err)
	}
	movers := make([]*structpb.Value, 0, 2)
	for _, p := range ctx.Movers() {
		movers = append(movers, structpb.NewNumberValue(float64(p)))
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"movers":      structpb.NewListValue(&structpb.ListValue{Values: movers}),
		"over":        structpb.NewBoolValue(ctx.Over()),
		"state":       structpb.NewStructValue(state),
		"legal_moves": EncodeMoves(g.Moves(ctx)),
	}}), nil
}

// DecodeContext reads a value produced by EncodeContext.
func DecodeContext(v *structpb.Value) (ContextView, error) {
	s, err := asStruct(v, "context")
	if err != nil {
		return ContextView{}, err
	}
	var view ContextView
	if view.Over, err = boolField(s, "over"); err != nil {
		return ContextView{}, err
	}
	moversValue, ok := s.Fields["movers"]
	if !ok || moversValue.GetListValue() == nil {
		return ContextView{}, fmt.Errorf("%w: context.movers is not a list", ErrTypeMismatch)
	}
	for i, item := range moversValue.GetListValue().GetValues() {
		p, err := AsInt(item, fmt.Sprintf("context.movers[%d]", i))
		if err != nil {
			return ContextView{}, err
		}
		view.Movers = append(view.Movers, p)
	}
	state, err := asStruct(s.Fields["state"], "context.state")
	if err != nil {
		return ContextView{}, err
	}
	view.State = state.AsMap()
	if view.LegalMoves, err = DecodeMoves(s.Fields["legal_moves"]); err != nil {
		return ContextView{}, err
	}
	return view, nil
}

// EncodeMove converts m.
func EncodeMove(m game.Move) *structpb.Value {
	fields := map[string]*structpb.Value{
		"mover":  structpb.NewNumberValue(float64(m.Mover)),
		"action": structpb.NewNumberValue(float64(m.Action)),
	}
	if m.Label != "" {
		fields["label"] = structpb.NewStringValue(m.Label)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

// DecodeMove converts a returned value back into a host move. A null or absent value
// is an ErrIllegalMove, any other malformed value an ErrTypeMismatch.
func DecodeMove(v *structpb.Value) (game.Move, error) {
	if v == nil {
		return game.Move{}, fmt.Errorf("%w: no move returned", ErrIllegalMove)
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return game.Move{}, fmt.Errorf("%w: null move returned", ErrIllegalMove)
	}
	s, err := asStruct(v, "move")
	if err != nil {
		return game.Move{}, err
	}
	mover, err := intField(s, "mover")
	if err != nil {
		return game.Move{}, err
	}
	action, err := intField(s, "action")
	if err != nil {
		return game.Move{}, err
	}
	m := game.Move{Mover: mover, Action: action}
	if label, ok := s.Fields["label"]; ok {
		if _, isString := label.GetKind().(*structpb.Value_StringValue); !isString {
			return game.Move{}, fmt.Errorf("%w: move.label is not a string", ErrTypeMismatch)
		}
		m.Label = label.GetStringValue()
	}
	return m, nil
}

// EncodeMoves converts a move list.
func EncodeMoves(moves []game.Move) *structpb.Value {
	values := make([]*structpb.Value, len(moves))
	for i, m := range moves {
		values[i] = EncodeMove(m)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

// DecodeMoves reads a value produced by EncodeMoves.
func DecodeMoves(v *structpb.Value) ([]game.Move, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: moves is not a list", ErrTypeMismatch)
	}
	moves := make([]game.Move, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		m, err := DecodeMove(item)
		if err != nil {
			return nil, fmt.Errorf("moves[%d]: %w", i, err)
		}
		moves = append(moves, m)
	}
	return moves, nil
}

// Number converts a float budget.
func Number(f float64) *structpb.Value { return structpb.NewNumberValue(f) }

// Int converts an integral identifier.
func Int(n int) *structpb.Value { return structpb.NewNumberValue(float64(n)) }

// Count converts an integral budget. Magnitudes beyond MaxExactInt are clamped to it,
// so a huge limit still means "effectively unlimited" on the other side.
func Count(n int) *structpb.Value {
	switch {
	case n > MaxExactInt:
		n = MaxExactInt
	case n < -MaxExactInt:
		n = -MaxExactInt
	}
	return structpb.NewNumberValue(float64(n))
}

// AsNumber reads a numeric field.
func AsNumber(v *structpb.Value, what string) (float64, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a number", ErrTypeMismatch, what)
	}
	return n.NumberValue, nil
}

// AsInt reads an integral numeric field.
func AsInt(v *structpb.Value, what string) (int, error) {
	f, err := AsNumber(v, what)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > MaxExactInt {
		return 0, fmt.Errorf("%w: %s=%v is not an integer", ErrTypeMismatch, what, f)
	}
	return int(f), nil
}

// AsString reads a string field.
func AsString(v *structpb.Value, what string) (string, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrTypeMismatch, what)
	}
	return s.StringValue, nil
}

func asStruct(v *structpb.Value, what string) (*structpb.Struct, error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("%w: %s is not an object", ErrTypeMismatch, what)
	}
	return s, nil
}

func intField(s *structpb.Struct, key string) (int, error) {
	v, ok := s.Fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrTypeMismatch, key)
	}
	return AsInt(v, key)
}

func stringField(s *structpb.Struct, key string) (string, error) {
	v, ok := s.Fields[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrTypeMismatch, key)
	}
	return AsString(v, key)
}

func boolField(s *structpb.Struct, key string) (bool, error) {
	v, ok := s.Fields[key]
	if !ok {
		return false, fmt.Errorf("%w: missing %q", ErrTypeMismatch, key)
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return false, fmt.Errorf("%w: %q is not a bool", ErrTypeMismatch, key)
	}
	return b.BoolValue, nil
}
