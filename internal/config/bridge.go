package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	// BridgeFile is the bridge configuration path relative to the install directory.
	BridgeFile = "libs/bridge.yaml"
	// DefaultAddress is where the policy runtime listens unless configured otherwise.
	DefaultAddress = "127.0.0.1:50061"
)

// Bridge is the content of libs/bridge.yaml: how to start the policy runtime and which
// policy to load from it.
type Bridge struct {
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Policy  PolicyConfig  `mapstructure:"policy"`
}

// RuntimeConfig describes the external policy runtime process.
type RuntimeConfig struct {
	// Command starts the runtime. A relative executable path is resolved against the
	// install directory.
	Command      []string      `mapstructure:"command"`
	Address      string        `mapstructure:"address"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// PolicyConfig names the module and factory that build delegates.
type PolicyConfig struct {
	Module        string `mapstructure:"module"`
	Factory       string `mapstructure:"factory"`
	ValidateMoves bool   `mapstructure:"validate_moves"`
}

// DefaultBridge returns the settings used for keys missing from the file.
func DefaultBridge() Bridge {
	return Bridge{
		Runtime: RuntimeConfig{
			Command:      []string{"agentbridge", "policy-host", "--exit-on-stdin-close"},
			Address:      DefaultAddress,
			StartTimeout: 10 * time.Second,
			ProbeTimeout: 500 * time.Millisecond,
		},
		Policy: PolicyConfig{
			Module:  "agentbridge.uct",
			Factory: "UCT",
		},
	}
}

// Validate checks if the bridge configuration is usable
func (b Bridge) Validate() error {
	if len(b.Runtime.Command) == 0 || b.Runtime.Command[0] == "" {
		return fmt.Errorf("runtime.command is required")
	}
	if b.Runtime.Address == "" {
		return fmt.Errorf("runtime.address is required")
	}
	if b.Runtime.StartTimeout <= 0 {
		return fmt.Errorf("runtime.start_timeout must be positive")
	}
	if b.Runtime.ProbeTimeout <= 0 {
		return fmt.Errorf("runtime.probe_timeout must be positive")
	}
	if b.Policy.Module == "" {
		return fmt.Errorf("policy.module is required")
	}
	if b.Policy.Factory == "" {
		return fmt.Errorf("policy.factory is required")
	}
	return nil
}

// LoadBridge reads and validates a bridge file.
func LoadBridge(path string) (Bridge, error) {
	v := viper.New()
	def := DefaultBridge()
	v.SetDefault("runtime.command", def.Runtime.Command)
	v.SetDefault("runtime.address", def.Runtime.Address)
	v.SetDefault("runtime.start_timeout", def.Runtime.StartTimeout)
	v.SetDefault("runtime.probe_timeout", def.Runtime.ProbeTimeout)
	v.SetDefault("policy.module", def.Policy.Module)
	v.SetDefault("policy.factory", def.Policy.Factory)
	v.SetDefault("policy.validate_moves", def.Policy.ValidateMoves)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Bridge{}, fmt.Errorf("read bridge config %s: %w", path, err)
	}

	var b Bridge
	if err := v.Unmarshal(&b); err != nil {
		return Bridge{}, fmt.Errorf("decode bridge config %s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return Bridge{}, fmt.Errorf("bridge config %s: %w", path, err)
	}
	return b, nil
}

// InstallDir returns the directory holding the running executable, with symlinks
// resolved.
func InstallDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// BridgePath returns the bridge file location for an install directory.
func BridgePath(installDir string) string {
	return filepath.Join(installDir, filepath.FromSlash(BridgeFile))
}
