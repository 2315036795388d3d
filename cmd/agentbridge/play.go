package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gosuri/uilive"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartridge/agentbridge/internal/agent"
	"github.com/cartridge/agentbridge/internal/bootstrap"
	"github.com/cartridge/agentbridge/internal/config"
	"github.com/cartridge/agentbridge/internal/events"
	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/logging"
	"github.com/cartridge/agentbridge/internal/match"
	"github.com/cartridge/agentbridge/internal/metrics"
	"github.com/cartridge/agentbridge/internal/policy"
	"github.com/cartridge/agentbridge/internal/storage"
	"github.com/cartridge/agentbridge/internal/types"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play matches between decision agents",
	Long: `Play runs matches of a registered game. Each seat is either a "baseline"
agent choosing uniformly among its legal moves or a "delegated" agent asking
the policy runtime configured in libs/bridge.yaml.`,
	RunE: runPlay,
}

func init() {
	def := config.Default()
	flags := playCmd.Flags()

	// Match settings
	flags.String("game", def.Game, "Game to play ("+strings.Join(game.Names(), ", ")+")")
	flags.Int("matches", def.Matches, "Number of matches")
	flags.Int("parallelism", def.Parallelism, "Matches played concurrently")
	flags.StringSlice("agents", def.Agents, "Agent kind per seat (baseline, delegated)")

	// Decision budget
	flags.Float64("max-seconds", def.MaxSeconds, "Advisory seconds per decision")
	flags.Int("max-iterations", def.MaxIterations, "Advisory iterations per decision (-1 for unset)")
	flags.Int("max-depth", def.MaxDepth, "Advisory search depth per decision (-1 for unset)")
	flags.Duration("match-timeout", def.MatchTimeout, "Timeout per match")

	flags.String("install-dir", def.InstallDir, "Directory holding libs/bridge.yaml (default: executable directory)")

	// Result sinks
	flags.String("nats-url", def.NATSURL, "Publish match results to this NATS server")
	flags.String("nats-subject", def.NATSSubject, "NATS subject prefix for match results")
	flags.String("database-url", def.DatabaseURL, "Store match results in this PostgreSQL database")

	bindFlags(flags)
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	g, err := game.Lookup(cfg.Game)
	if err != nil {
		return err
	}
	if len(cfg.Agents) != g.Players() {
		return fmt.Errorf("%s needs %d agents, got %d", cfg.Game, g.Players(), len(cfg.Agents))
	}

	collector := metrics.NewCollector(logging.Component(logger, "metrics"))
	opts := []bootstrap.Option{
		bootstrap.WithLogger(logging.Component(logger, "bootstrap")),
		bootstrap.WithMetrics(collector),
	}
	if cfg.InstallDir != "" {
		opts = append(opts, bootstrap.WithInstallDir(cfg.InstallDir))
	}
	bootstrap.Configure(opts...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner := match.NewRunner(policy.Budget{
		MaxSeconds:    cfg.MaxSeconds,
		MaxIterations: cfg.MaxIterations,
		MaxDepth:      cfg.MaxDepth,
	})
	runner.MatchTimeout = cfg.MatchTimeout
	runner.Metrics = collector
	runner.Logger = logging.Component(logger, "match")

	if cfg.DatabaseURL != "" {
		store, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		runner.Store = store
	}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logging.Component(logger, "events"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer pub.Close()
		runner.Publisher = pub
	}

	agentLogger := logging.Component(logger, "agent")
	seats := func(int) ([]*agent.Agent, error) {
		agents := make([]*agent.Agent, len(cfg.Agents))
		for i, kind := range cfg.Agents {
			s, err := policy.New(kind, bootstrap.Default())
			if err != nil {
				return nil, err
			}
			agents[i] = agent.New(s, agent.WithLogger(agentLogger), agent.WithMetrics(collector))
		}
		return agents, nil
	}

	writer := uilive.New()
	writer.Start()
	progress := func(done, total int, r types.MatchResult) {
		fmt.Fprintf(writer, "%s: %d/%d matches (last: %s, %d plies)\n", cfg.Game, done, total, r.Status, r.Plies)
	}
	newGame := func() game.Game {
		fresh, _ := game.Lookup(cfg.Game)
		return fresh
	}
	summary, err := runner.PlayMany(ctx, newGame, cfg.Matches, cfg.Parallelism, seats, progress)
	writer.Stop()
	if err != nil {
		logger.Warn().Err(err).Msg("Stopped before all matches were played")
	}

	return printSummary(cmd, summary, collector.Decisions(), logger)
}

func printSummary(cmd *cobra.Command, summary match.Summary, decisions []metrics.DecisionStats, logger zerolog.Logger) error {
	out := struct {
		match.Summary
		Decisions []metrics.DecisionStats `json:"decisions"`
	}{summary, decisions}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if summary.Failed > 0 {
		logger.Error().Int("failed", summary.Failed).Msg("Some matches failed")
		return fmt.Errorf("%d of %d matches failed", summary.Failed, summary.Matches)
	}
	return nil
}
