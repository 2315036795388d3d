package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/cartridge/agentbridge/internal/game"
)

// MatchStatus is the final state of a match.
type MatchStatus string

const (
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusFailed    MatchStatus = "failed"
)

// Seat describes one player of a match.
type Seat struct {
	PlayerID int     `json:"player_id"`
	Agent    string  `json:"agent"`
	Strategy string  `json:"strategy"`
	Utility  float64 `json:"utility"`
}

// MatchResult is the record kept for every finished match.
type MatchResult struct {
	ID        string      `json:"id"`
	Game      string      `json:"game"`
	Status    MatchStatus `json:"status"`
	Seats     []Seat      `json:"seats"`
	Moves     []game.Move `json:"moves"`
	Plies     int         `json:"plies"`
	Error     string      `json:"error,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`
}

// Validate ensures a result is complete enough to be stored.
func (r MatchResult) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.Game == "" {
		return errors.New("game is required")
	}
	switch r.Status {
	case MatchStatusCompleted:
		if r.Error != "" {
			return errors.New("completed match carries an error")
		}
	case MatchStatusFailed:
		if r.Error == "" {
			return errors.New("failed match needs an error")
		}
	default:
		return fmt.Errorf("unknown status %q", r.Status)
	}
	for i, s := range r.Seats {
		if s.PlayerID != i+1 {
			return fmt.Errorf("seat %d has player id %d", i, s.PlayerID)
		}
	}
	if r.EndedAt.Before(r.StartedAt) {
		return errors.New("ended_at precedes started_at")
	}
	return nil
}

// Utilities returns the utility of each seat in player order.
func (r MatchResult) Utilities() []float64 {
	out := make([]float64, len(r.Seats))
	for i, s := range r.Seats {
		out[i] = s.Utility
	}
	return out
}

// Duration is the wall time the match took.
func (r MatchResult) Duration() time.Duration { return r.EndedAt.Sub(r.StartedAt) }
