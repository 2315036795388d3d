package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	// Games known to both the referee and the policy host.
	_ "github.com/cartridge/agentbridge/internal/game/rps"
	_ "github.com/cartridge/agentbridge/internal/game/tictactoe"
)

var rootCmd = &cobra.Command{
	Use:   "agentbridge",
	Short: "Decision agents backed by an external policy runtime",
	Long: `agentbridge plays turn-based games with decision agents whose moves come
either from a local uniform-random baseline or from a policy delegate hosted
in a separate policy runtime process.

The policy-host command is that runtime; play starts it on demand using
libs/bridge.yaml next to the executable.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	bindFlags(rootCmd.PersistentFlags())

	// Bind flags to viper for environment variable support
	viper.SetEnvPrefix("AGENTBRIDGE")
	viper.AutomaticEnv()
}

// bindFlags registers every flag under its name with dashes turned into underscores, so
// --max-seconds is also read from AGENTBRIDGE_MAX_SECONDS.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
