// Package match is a small referee that drives decision agents through complete
// matches, the way a host engine would.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/agentbridge/internal/agent"
	"github.com/cartridge/agentbridge/internal/events"
	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/metrics"
	"github.com/cartridge/agentbridge/internal/policy"
	"github.com/cartridge/agentbridge/internal/storage"
	"github.com/cartridge/agentbridge/internal/types"
)

const defaultMaxPlies = 10000

var (
	// ErrIllegalMove is returned when an agent answers with a move the referee rejects.
	ErrIllegalMove = policy.ErrIllegalMove
	// ErrSeats is returned when the number of agents does not match the game.
	ErrSeats = errors.New("agent count does not match players")
	// ErrTooLong is returned when a match exceeds MaxPlies.
	ErrTooLong = errors.New("match exceeded ply limit")
)

// Runner plays matches and records their results.
type Runner struct {
	Budget       policy.Budget
	MaxPlies     int
	MatchTimeout time.Duration

	Store     storage.MatchStore
	Publisher events.Publisher
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// NewRunner returns a runner with the given decision budget, an in-memory store and no
// event publishing.
func NewRunner(budget policy.Budget) *Runner {
	return &Runner{
		Budget:    budget,
		MaxPlies:  defaultMaxPlies,
		Store:     storage.NewMemoryStore(),
		Publisher: events.NoopPublisher{},
		Logger:    zerolog.Nop(),
	}
}

// releaser is implemented by strategies holding remote state.
type releaser interface {
	Release(ctx context.Context) error
}

// Play runs one match of g. agents[i] plays player i+1. The result is stored and
// published whether or not the match completed.
func (r *Runner) Play(ctx context.Context, g game.Game, agents []*agent.Agent) (types.MatchResult, error) {
	if r.MatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.MatchTimeout)
		defer cancel()
	}

	result := types.MatchResult{
		ID:        uuid.New().String(),
		Game:      g.Name(),
		StartedAt: time.Now().UTC(),
	}
	for i, a := range agents {
		result.Seats = append(result.Seats, types.Seat{
			PlayerID: i + 1,
			Agent:    a.FriendlyName(),
			Strategy: a.Strategy().Name(),
		})
	}

	c, playErr := r.play(ctx, g, agents, &result)
	for _, a := range agents {
		if rel, ok := a.Strategy().(releaser); ok {
			if err := rel.Release(context.WithoutCancel(ctx)); err != nil {
				r.Logger.Warn().Err(err).Str("match_id", result.ID).Msg("Failed to release delegate")
			}
		}
	}

	result.EndedAt = time.Now().UTC()
	result.Status = types.MatchStatusCompleted
	if playErr != nil {
		result.Status = types.MatchStatusFailed
		result.Error = playErr.Error()
	} else {
		for i := range result.Seats {
			result.Seats[i].Utility = c.Utility(i + 1)
		}
	}

	if err := r.record(context.WithoutCancel(ctx), result); err != nil && playErr == nil {
		return result, err
	}
	return result, playErr
}

func (r *Runner) play(ctx context.Context, g game.Game, agents []*agent.Agent, result *types.MatchResult) (game.Context, error) {
	if len(agents) != g.Players() {
		return nil, fmt.Errorf("%w: %s needs %d, got %d", ErrSeats, g.Name(), g.Players(), len(agents))
	}
	for i, a := range agents {
		if err := a.InitAI(ctx, g, i+1); err != nil {
			return nil, fmt.Errorf("seat %d: %w", i+1, err)
		}
	}

	maxPlies := r.MaxPlies
	if maxPlies <= 0 {
		maxPlies = defaultMaxPlies
	}
	c := g.NewContext()
	for !c.Over() {
		if result.Plies >= maxPlies {
			return c, fmt.Errorf("%w (%d)", ErrTooLong, maxPlies)
		}
		if err := ctx.Err(); err != nil {
			return c, err
		}

		movers := c.Movers()
		joint := make([]game.Move, 0, len(movers))
		for _, p := range movers {
			if p < 1 || p > len(agents) {
				return c, fmt.Errorf("%s reports mover %d", g.Name(), p)
			}
			m, err := agents[p-1].SelectAction(ctx, g, c, r.Budget.MaxSeconds, r.Budget.MaxIterations, r.Budget.MaxDepth)
			if err != nil {
				return c, fmt.Errorf("player %d: %w", p, err)
			}
			if m.Mover != p || !game.Contains(policy.LegalFor(g, c, p), m) {
				return c, fmt.Errorf("%w: player %d played %s", ErrIllegalMove, p, m)
			}
			joint = append(joint, m)
		}
		if err := g.Apply(c, joint...); err != nil {
			return c, fmt.Errorf("apply %v: %w", joint, err)
		}
		result.Moves = append(result.Moves, joint...)
		result.Plies++
	}
	return c, nil
}

func (r *Runner) record(ctx context.Context, result types.MatchResult) error {
	r.Metrics.MatchFinished(result.Game, result.Duration(), result.Plies, result.Utilities())

	if r.Publisher != nil {
		if err := r.Publisher.PublishMatchResult(ctx, result); err != nil {
			r.Logger.Warn().Err(err).Str("match_id", result.ID).Msg("Failed to publish match result")
		}
	}
	if r.Store != nil {
		if err := r.Store.SaveMatch(ctx, result); err != nil {
			return fmt.Errorf("save match %s: %w", result.ID, err)
		}
	}
	r.Logger.Debug().
		Str("match_id", result.ID).
		Str("status", string(result.Status)).
		Int("plies", result.Plies).
		Msg("Match finished")
	return nil
}
