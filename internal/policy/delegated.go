package policy

import (
	"context"
	"fmt"

	"github.com/cartridge/agentbridge/internal/bootstrap"
	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/policyrpc"
	"github.com/cartridge/agentbridge/internal/wire"
)

// Delegated forwards every decision to a delegate created in the policy runtime.
type Delegated struct {
	runtime  *bootstrap.Runtime
	factory  string
	validate *bool

	handle     *bootstrap.Handle
	delegateID string
	playerID   int
}

// DelegatedOption configures a Delegated strategy.
type DelegatedOption func(*Delegated)

// WithFactory overrides the factory named in the bridge file.
func WithFactory(name string) DelegatedOption {
	return func(d *Delegated) { d.factory = name }
}

// WithValidateMoves overrides policy.validate_moves. When on, a returned move outside
// the player's legal set fails with ErrIllegalMove instead of being passed on.
func WithValidateMoves(on bool) DelegatedOption {
	return func(d *Delegated) { d.validate = &on }
}

// NewDelegated returns a strategy backed by rt, or by the process-wide runtime when rt
// is nil.
func NewDelegated(rt *bootstrap.Runtime, opts ...DelegatedOption) *Delegated {
	if rt == nil {
		rt = bootstrap.Default()
	}
	d := &Delegated{runtime: rt}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (*Delegated) Name() string { return "delegated" }

// DelegateID returns the id of the current delegate, empty before Init.
func (d *Delegated) DelegateID() string { return d.delegateID }

// Init starts the runtime if needed and builds a new delegate for playerID. A delegate
// from an earlier Init is released first and never reused.
func (d *Delegated) Init(ctx context.Context, g game.Game, playerID int) error {
	h, err := d.runtime.Ensure(ctx)
	if err != nil {
		return err
	}
	if err := d.Release(ctx); err != nil {
		return fmt.Errorf("release previous delegate: %w", err)
	}

	factory := d.factory
	if factory == "" {
		factory = h.Config.Policy.Factory
	}
	if !h.HasFactory(factory) {
		return fmt.Errorf("%w: module %s has no factory %q", ErrDelegateConstruction, h.Module, factory)
	}
	id, err := h.Client.Create(ctx, h.Module, factory)
	if err != nil {
		return fmt.Errorf("%w: create %s.%s: %w", ErrDelegateConstruction, h.Module, factory, err)
	}
	if err := h.Client.Init(ctx, id, wire.EncodeGame(g), playerID); err != nil {
		_ = h.Client.Release(ctx, id)
		return fmt.Errorf("%w: init %s.%s: %w", ErrDelegateConstruction, h.Module, factory, err)
	}

	d.handle = h
	d.delegateID = id
	d.playerID = playerID
	return nil
}

func (d *Delegated) SelectAction(ctx context.Context, g game.Game, c game.Context, b Budget) (game.Move, error) {
	if d.delegateID == "" {
		return game.Move{}, ErrNotInitialized
	}
	encoded, err := wire.EncodeContext(g, c)
	if err != nil {
		return game.Move{}, err
	}
	raw, err := d.handle.Client.SelectAction(ctx, policyrpc.SelectRequest{
		DelegateID:    d.delegateID,
		Game:          wire.EncodeGame(g),
		Context:       encoded,
		MaxSeconds:    b.MaxSeconds,
		MaxIterations: b.MaxIterations,
		MaxDepth:      b.MaxDepth,
	})
	if err != nil {
		return game.Move{}, fmt.Errorf("delegate %s: %w", d.delegateID, err)
	}
	move, err := wire.DecodeMove(raw)
	if err != nil {
		return game.Move{}, err
	}

	if d.validateMoves() && !game.Contains(LegalFor(g, c, d.playerID), move) {
		return game.Move{}, fmt.Errorf("%w: delegate returned %s for player %d", ErrIllegalMove, move, d.playerID)
	}
	return move, nil
}

// Release discards the current delegate, if any.
func (d *Delegated) Release(ctx context.Context) error {
	if d.delegateID == "" {
		return nil
	}
	id := d.delegateID
	d.delegateID = ""
	return d.handle.Client.Release(ctx, id)
}

func (d *Delegated) validateMoves() bool {
	if d.validate != nil {
		return *d.validate
	}
	return d.handle.Config.Policy.ValidateMoves
}
