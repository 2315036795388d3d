// Package agent is the decision agent a host engine drives: InitAI once per match,
// then SelectAction whenever the agent's player must move.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/metrics"
	"github.com/cartridge/agentbridge/internal/policy"
)

// ErrNotInitialized is returned by SelectAction before a successful InitAI.
var ErrNotInitialized = policy.ErrNotInitialized

// Agent adapts a policy.Strategy to the host engine's agent contract.
type Agent struct {
	name     string
	strategy policy.Strategy
	logger   zerolog.Logger
	metrics  *metrics.Collector

	playerID int
	ready    bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger used for debug output. The default discards everything.
func WithLogger(l zerolog.Logger) Option { return func(a *Agent) { a.logger = l } }

// WithMetrics reports every decision's latency and outcome to c.
func WithMetrics(c *metrics.Collector) Option { return func(a *Agent) { a.metrics = c } }

// WithName overrides the display name.
func WithName(name string) Option { return func(a *Agent) { a.name = name } }

// New returns an uninitialised agent backed by s.
func New(s policy.Strategy, opts ...Option) *Agent {
	a := &Agent{
		name:     "Agentbridge (" + s.Name() + ")",
		strategy: s,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) FriendlyName() string { return a.name }

// PlayerID returns the player set by the last successful InitAI, or 0.
func (a *Agent) PlayerID() int { return a.playerID }

func (a *Agent) Ready() bool { return a.ready }

// Strategy returns the strategy the agent delegates to.
func (a *Agent) Strategy() policy.Strategy { return a.strategy }

// InitAI prepares the agent to play playerID in g. Calling it again starts over with a
// fresh strategy state; a failed call leaves the agent not ready.
func (a *Agent) InitAI(ctx context.Context, g game.Game, playerID int) error {
	a.ready = false
	if err := a.strategy.Init(ctx, g, playerID); err != nil {
		a.logger.Debug().Err(err).Str("game", g.Name()).Int("player_id", playerID).Msg("InitAI failed")
		return fmt.Errorf("init %s for player %d: %w", g.Name(), playerID, err)
	}
	a.playerID = playerID
	a.ready = true
	a.logger.Debug().
		Str("strategy", a.strategy.Name()).
		Str("game", g.Name()).
		Int("player_id", playerID).
		Msg("Agent initialised")
	return nil
}

// SelectAction returns the move of this agent's player in c. The budget is advisory
// and passed through to the strategy.
func (a *Agent) SelectAction(ctx context.Context, g game.Game, c game.Context, maxSeconds float64, maxIterations, maxDepth int) (game.Move, error) {
	if !a.ready {
		return game.Move{}, ErrNotInitialized
	}
	start := time.Now()
	m, err := a.strategy.SelectAction(ctx, g, c, policy.Budget{
		MaxSeconds:    maxSeconds,
		MaxIterations: maxIterations,
		MaxDepth:      maxDepth,
	})
	elapsed := time.Since(start)
	a.metrics.DecisionMade(a.strategy.Name(), elapsed, err)
	if err != nil {
		return game.Move{}, err
	}
	a.logger.Debug().
		Int("player_id", a.playerID).
		Str("move", m.String()).
		Dur("elapsed", elapsed).
		Msg("Move selected")
	return m, nil
}
