package events

import (
	"context"
	"sync"

	"github.com/cartridge/agentbridge/internal/types"
)

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishMatchResult(ctx context.Context, result types.MatchResult) error
}

// MatchEvent is the payload published for every finished match.
type MatchEvent struct {
	MatchID    string    `json:"match_id"`
	Game       string    `json:"game"`
	Status     string    `json:"status"`
	Plies      int       `json:"plies"`
	Utilities  []float64 `json:"utilities"`
	Strategies []string  `json:"strategies"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// NewMatchEvent summarises result.
func NewMatchEvent(result types.MatchResult) MatchEvent {
	strategies := make([]string, len(result.Seats))
	for i, s := range result.Seats {
		strategies[i] = s.Strategy
	}
	return MatchEvent{
		MatchID:    result.ID,
		Game:       result.Game,
		Status:     string(result.Status),
		Plies:      result.Plies,
		Utilities:  result.Utilities(),
		Strategies: strategies,
		DurationMS: result.Duration().Milliseconds(),
		Error:      result.Error,
	}
}

// NoopPublisher drops events; useful for tests.
type NoopPublisher struct{}

// PublishMatchResult satisfies Publisher.
func (NoopPublisher) PublishMatchResult(context.Context, types.MatchResult) error { return nil }

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []MatchEvent
}

func (m *MemoryPublisher) PublishMatchResult(_ context.Context, result types.MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, NewMatchEvent(result))
	return nil
}

// Events returns a copy of everything published so far.
func (m *MemoryPublisher) Events() []MatchEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MatchEvent(nil), m.events...)
}
