package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
	require.NoError(t, DefaultHost().Validate())
	require.NoError(t, DefaultBridge().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing game", func(c *Config) { c.Game = "" }, "game is required"},
		{"zero matches", func(c *Config) { c.Matches = 0 }, "matches must be positive"},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }, "parallelism must be positive"},
		{"no agents", func(c *Config) { c.Agents = nil }, "at least one agent"},
		{"unknown agent", func(c *Config) { c.Agents = []string{"oracle"} }, `unknown agent kind "oracle"`},
		{"unbounded budget", func(c *Config) { c.MaxSeconds = 0; c.MaxIterations = -1 }, "must bound each decision"},
		{"nats without subject", func(c *Config) { c.NATSURL = "nats://x"; c.NATSSubject = "" }, "nats_subject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func writeBridge(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := BridgePath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadBridge(t *testing.T) {
	path := writeBridge(t, `
runtime:
  command: ["bin/host", "--verbose"]
  address: unix:///tmp/policy.sock
  start_timeout: 3s
policy:
  module: custom.mcts
  factory: Agent
  validate_moves: true
`)
	b, err := LoadBridge(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bin/host", "--verbose"}, b.Runtime.Command)
	assert.Equal(t, "unix:///tmp/policy.sock", b.Runtime.Address)
	assert.Equal(t, 3*time.Second, b.Runtime.StartTimeout)
	assert.Equal(t, DefaultBridge().Runtime.ProbeTimeout, b.Runtime.ProbeTimeout)
	assert.Equal(t, "custom.mcts", b.Policy.Module)
	assert.Equal(t, "Agent", b.Policy.Factory)
	assert.True(t, b.Policy.ValidateMoves)
}

func TestLoadBridgeDefaults(t *testing.T) {
	b, err := LoadBridge(writeBridge(t, "policy:\n  factory: Random\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBridge().Runtime, b.Runtime)
	assert.Equal(t, "agentbridge.uct", b.Policy.Module)
	assert.Equal(t, "Random", b.Policy.Factory)
}

func TestLoadBridgeErrors(t *testing.T) {
	_, err := LoadBridge(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadBridge(writeBridge(t, "runtime:\n  address: \"\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime.address is required")
}

func TestInstallDir(t *testing.T) {
	dir, err := InstallDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
	assert.Equal(t, filepath.Join(dir, "libs", "bridge.yaml"), BridgePath(dir))
}
