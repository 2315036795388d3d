package config

import (
	"fmt"
	"time"
)

// Agent kinds accepted in Config.Agents.
const (
	AgentBaseline  = "baseline"
	AgentDelegated = "delegated"
)

// Config holds all settings of the play command
type Config struct {
	// Match settings
	Game        string   `mapstructure:"game"`
	Matches     int      `mapstructure:"matches"`
	Parallelism int      `mapstructure:"parallelism"`
	Agents      []string `mapstructure:"agents"`

	// Decision budget handed to every selectAction call
	MaxSeconds    float64       `mapstructure:"max_seconds"`
	MaxIterations int           `mapstructure:"max_iterations"`
	MaxDepth      int           `mapstructure:"max_depth"`
	MatchTimeout  time.Duration `mapstructure:"match_timeout"`

	// InstallDir overrides where libs/bridge.yaml is looked up
	InstallDir string `mapstructure:"install_dir"`

	// Result sinks
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
	DatabaseURL string `mapstructure:"database_url"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Game:          "tictactoe",
		Matches:       1,
		Parallelism:   1,
		Agents:        []string{AgentDelegated, AgentBaseline},
		MaxSeconds:    0.5,
		MaxIterations: -1, // unlimited
		MaxDepth:      -1, // unlimited
		MatchTimeout:  5 * time.Minute,
		NATSSubject:   "agentbridge.matches",
		LogLevel:      "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Game == "" {
		return fmt.Errorf("game is required")
	}
	if c.Matches <= 0 {
		return fmt.Errorf("matches must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	for i, kind := range c.Agents {
		if kind != AgentBaseline && kind != AgentDelegated {
			return fmt.Errorf("agents[%d]: unknown agent kind %q", i, kind)
		}
	}
	if c.MaxSeconds <= 0 && c.MaxIterations <= 0 {
		return fmt.Errorf("max_seconds or max_iterations must bound each decision")
	}
	if c.MatchTimeout <= 0 {
		return fmt.Errorf("match_timeout must be positive")
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		return fmt.Errorf("nats_subject is required with nats_url")
	}
	return nil
}

// HostConfig holds settings of the policy-host command
type HostConfig struct {
	Listen           string        `mapstructure:"listen"`
	AdminAddr        string        `mapstructure:"admin_addr"`
	ExitOnStdinClose bool          `mapstructure:"exit_on_stdin_close"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel         string        `mapstructure:"log_level"`
}

// DefaultHost returns a policy host config with sensible defaults
func DefaultHost() *HostConfig {
	return &HostConfig{
		Listen:          DefaultAddress,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
	}
}

// Validate checks if the configuration is valid
func (c *HostConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}
