package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Collector logs bridge metrics and keeps decision latencies for summaries.
// A nil *Collector discards everything.
type Collector struct {
	logger zerolog.Logger

	mu        sync.Mutex
	latencies map[string][]float64
	failures  map[string]int
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger:    logger,
		latencies: make(map[string][]float64),
		failures:  make(map[string]int),
	}
}

// Track policy runtime bootstrap
func (c *Collector) BootstrapCompleted(duration time.Duration, err error) {
	if c == nil {
		return
	}
	event := c.logger.Info()
	if err != nil {
		event = c.logger.Error().Err(err)
	}
	event.
		Str("metric", "bootstrap_completed").
		Bool("ok", err == nil).
		Dur("duration", duration).
		Msg("Bootstrap metric")
}

// Track selectAction calls per agent kind
func (c *Collector) DecisionMade(kind string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if err != nil {
		c.failures[kind]++
	} else {
		c.latencies[kind] = append(c.latencies[kind], duration.Seconds()*1000)
	}
	c.mu.Unlock()

	event := c.logger.Debug()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	event.
		Str("metric", "decision_made").
		Str("agent", kind).
		Dur("duration", duration).
		Msg("Decision metric")
}

// Track finished matches
func (c *Collector) MatchFinished(gameName string, duration time.Duration, plies int, utilities []float64) {
	if c == nil {
		return
	}
	c.logger.Info().
		Str("metric", "match_finished").
		Str("game", gameName).
		Int("plies", plies).
		Floats64("utilities", utilities).
		Dur("duration", duration).
		Msg("Match metric")
}

// DecisionStats summarises decision latencies in milliseconds.
type DecisionStats struct {
	Agent    string  `json:"agent"`
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	MeanMS   float64 `json:"mean_ms"`
	StdDevMS float64 `json:"stddev_ms"`
	P50MS    float64 `json:"p50_ms"`
	P95MS    float64 `json:"p95_ms"`
}

// Decisions returns one summary per agent kind, ordered by kind.
func (c *Collector) Decisions() []DecisionStats {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := make(map[string]bool)
	for kind := range c.latencies {
		kinds[kind] = true
	}
	for kind := range c.failures {
		kinds[kind] = true
	}

	out := make([]DecisionStats, 0, len(kinds))
	for kind := range kinds {
		s := DecisionStats{Agent: kind, Failures: c.failures[kind]}
		if xs := c.latencies[kind]; len(xs) > 0 {
			sorted := append([]float64(nil), xs...)
			sort.Float64s(sorted)
			s.Count = len(sorted)
			if len(sorted) == 1 {
				s.MeanMS = sorted[0]
			} else {
				s.MeanMS, s.StdDevMS = stat.MeanStdDev(sorted, nil)
			}
			s.P50MS = stat.Quantile(0.5, stat.Empirical, sorted, nil)
			s.P95MS = stat.Quantile(0.95, stat.Empirical, sorted, nil)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}
