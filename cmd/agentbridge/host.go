package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartridge/agentbridge/internal/config"
	"github.com/cartridge/agentbridge/internal/logging"
	"github.com/cartridge/agentbridge/internal/policyhost"
)

var hostCmd = &cobra.Command{
	Use:   "policy-host",
	Short: "Run the policy runtime",
	Long: `policy-host serves the policy modules over gRPC. It is normally started by
the first delegated agent in a process, which keeps its stdin open and expects
it to exit once that pipe closes (--exit-on-stdin-close).`,
	RunE: runHost,
}

func init() {
	def := config.DefaultHost()
	flags := hostCmd.Flags()
	flags.String("listen", def.Listen, "gRPC listen address (host:port or unix:///path)")
	flags.String("admin-addr", def.AdminAddr, "Admin HTTP listen address (disabled when empty)")
	flags.Bool("exit-on-stdin-close", def.ExitOnStdinClose, "Exit when stdin reaches EOF")
	flags.Duration("shutdown-timeout", def.ShutdownTimeout, "Graceful shutdown timeout")

	bindFlags(flags)
	rootCmd.AddCommand(hostCmd)
}

func runHost(_ *cobra.Command, _ []string) error {
	cfg := config.DefaultHost()
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
	logger = logging.Component(logger, "policy-host")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.ExitOnStdinClose {
		go func() {
			_, _ = io.Copy(io.Discard, os.Stdin)
			logger.Info().Msg("Stdin closed, parent is gone")
			cancel()
		}()
	}

	registry := policyhost.DefaultRegistry()
	logger.Info().
		Str("listen", cfg.Listen).
		Str("admin_addr", cfg.AdminAddr).
		Strs("modules", registry.Modules()).
		Msg("Starting policy host")

	server := policyhost.NewServer(registry, logger)
	return server.Run(ctx, policyhost.Config{
		Listen:          cfg.Listen,
		AdminAddr:       cfg.AdminAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
}
