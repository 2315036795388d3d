package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/cartridge/agentbridge/internal/types"
)

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a result with the same id already exists.
	ErrConflict = errors.New("conflict")
)

// MatchStore persists finished matches.
type MatchStore interface {
	SaveMatch(ctx context.Context, result types.MatchResult) error
	GetMatch(ctx context.Context, id string) (types.MatchResult, error)
	// ListMatches returns the newest matches first. An empty game matches every game;
	// a non-positive limit means no limit.
	ListMatches(ctx context.Context, game string, limit int) ([]types.MatchResult, error)
}

// MemoryStore is an in-memory MatchStore for development/testing.
type MemoryStore struct {
	mu      sync.RWMutex
	matches map[string]types.MatchResult
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{matches: make(map[string]types.MatchResult)}
}

// SaveMatch inserts a new result, enforcing uniqueness.
func (m *MemoryStore) SaveMatch(_ context.Context, result types.MatchResult) error {
	if err := result.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.matches[result.ID]; exists {
		return ErrConflict
	}
	m.matches[result.ID] = result
	return nil
}

// GetMatch fetches a result by ID.
func (m *MemoryStore) GetMatch(_ context.Context, id string) (types.MatchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.matches[id]
	if !ok {
		return types.MatchResult{}, ErrNotFound
	}
	return result, nil
}

func (m *MemoryStore) ListMatches(_ context.Context, game string, limit int) ([]types.MatchResult, error) {
	m.mu.RLock()
	out := make([]types.MatchResult, 0, len(m.matches))
	for _, r := range m.matches {
		if game == "" || r.Game == game {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EndedAt.Equal(out[j].EndedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
