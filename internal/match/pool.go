package match

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/cartridge/agentbridge/internal/agent"
	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/types"
)

// SeatFactory builds the agents of match i. Agents are not shared between matches.
type SeatFactory func(i int) ([]*agent.Agent, error)

// Progress is called after every match with the number finished so far.
type Progress func(done, total int, result types.MatchResult)

// SeatSummary aggregates the completed matches of one player.
type SeatSummary struct {
	PlayerID int     `json:"player_id"`
	Strategy string  `json:"strategy"`
	Mean     float64 `json:"mean_utility"`
	StdDev   float64 `json:"stddev_utility"`
	Wins     int     `json:"wins"`
	Draws    int     `json:"draws"`
	Losses   int     `json:"losses"`
}

// Summary aggregates a batch of matches.
type Summary struct {
	Game      string              `json:"game"`
	Matches   int                 `json:"matches"`
	Completed int                 `json:"completed"`
	Failed    int                 `json:"failed"`
	Seats     []SeatSummary       `json:"seats"`
	Results   []types.MatchResult `json:"-"`
	// Errors maps failed match ids to their error.
	Errors map[string]string `json:"errors,omitempty"`
}

// PlayMany plays n matches of newGame() on parallelism workers. Failed matches are
// counted, not returned as errors; the error is non-nil only when ctx ends early.
func (r *Runner) PlayMany(ctx context.Context, newGame game.Factory, n, parallelism int, seats SeatFactory, progress Progress) (Summary, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	results := make([]types.MatchResult, n)
	played := make([]bool, n)

	jobs := make(chan int)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for w := 0; w < parallelism; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				result := r.playOne(ctx, newGame(), i, seats)

				mu.Lock()
				results[i] = result
				played[i] = true
				done++
				finished := done
				mu.Unlock()

				if progress != nil {
					progress(finished, n, result)
				}
			}
		}()
	}

feed:
	for i := 0; i < n && ctx.Err() == nil; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	var finished []types.MatchResult
	for i, ok := range played {
		if ok {
			finished = append(finished, results[i])
		}
	}
	summary := Summarize(newGame().Name(), finished)
	return summary, ctx.Err()
}

func (r *Runner) playOne(ctx context.Context, g game.Game, i int, seats SeatFactory) types.MatchResult {
	agents, err := seats(i)
	if err != nil {
		r.Logger.Error().Err(err).Int("match", i).Msg("Failed to build agents")
		now := time.Now().UTC()
		return types.MatchResult{
			ID:        uuid.New().String(),
			Game:      g.Name(),
			Status:    types.MatchStatusFailed,
			Error:     err.Error(),
			StartedAt: now,
			EndedAt:   now,
		}
	}
	result, err := r.Play(ctx, g, agents)
	if err != nil {
		r.Logger.Warn().Err(err).Str("match_id", result.ID).Msg("Match failed")
	}
	return result
}

// Summarize aggregates results per seat using their utilities.
func Summarize(gameName string, results []types.MatchResult) Summary {
	s := Summary{Game: gameName, Matches: len(results), Results: results}

	var utilities [][]float64
	for _, r := range results {
		if r.Status != types.MatchStatusCompleted {
			s.Failed++
			if s.Errors == nil {
				s.Errors = make(map[string]string)
			}
			s.Errors[r.ID] = r.Error
			continue
		}
		s.Completed++
		for i, seat := range r.Seats {
			for len(s.Seats) <= i {
				s.Seats = append(s.Seats, SeatSummary{PlayerID: len(s.Seats) + 1, Strategy: seat.Strategy})
				utilities = append(utilities, nil)
			}
			utilities[i] = append(utilities[i], seat.Utility)
			switch seat.Utility {
			case 1:
				s.Seats[i].Wins++
			case 0:
				s.Seats[i].Losses++
			default:
				s.Seats[i].Draws++
			}
		}
	}

	for i, us := range utilities {
		if len(us) == 1 {
			s.Seats[i].Mean = us[0]
			continue
		}
		s.Seats[i].Mean, s.Seats[i].StdDev = stat.MeanStdDev(us, nil)
	}
	return s
}
