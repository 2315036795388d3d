// Package bootstrap starts the out-of-process policy runtime exactly once per process
// and loads the configured policy module into it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cartridge/agentbridge/internal/config"
	"github.com/cartridge/agentbridge/internal/metrics"
	"github.com/cartridge/agentbridge/internal/policyrpc"
)

const (
	// ConfigEnv is set to the bridge file path before the runtime is first used.
	ConfigEnv = "AGENTBRIDGE_CONFIG"
	// PathEnv tells a launched runtime where its install directory is.
	PathEnv = "AGENTBRIDGE_PATH"
	// ListenEnv tells a launched runtime which address to serve on.
	ListenEnv = "AGENTBRIDGE_LISTEN"

	defaultPollInterval = 50 * time.Millisecond
)

// ErrBootstrap is returned, wrapped, by every Ensure call after the runtime failed to
// come up. The failure is permanent for the life of the Runtime.
var ErrBootstrap = errors.New("policy runtime bootstrap failed")

// Handle is a started runtime with the configured module imported.
type Handle struct {
	Config    config.Bridge
	Module    string
	Factories []string
	Client    *policyrpc.Client

	conn *grpc.ClientConn
}

// HasFactory reports whether the imported module exposes name.
func (h *Handle) HasFactory(name string) bool {
	for _, f := range h.Factories {
		if f == name {
			return true
		}
	}
	return false
}

// Close releases the connection to the runtime.
func (h *Handle) Close() error { return h.conn.Close() }

// Dialer opens raw connections to the runtime address.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// Runtime guards the one-time start of the policy runtime.
type Runtime struct {
	installDir   string
	launcher     Launcher
	dialer       Dialer
	logger       zerolog.Logger
	metrics      *metrics.Collector
	pollInterval time.Duration

	mu    sync.Mutex
	err   error
	ready atomic.Pointer[Handle]
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithInstallDir overrides the directory holding libs/bridge.yaml. By default it is the
// directory of the running executable.
func WithInstallDir(dir string) Option { return func(r *Runtime) { r.installDir = dir } }

// WithLauncher replaces how the runtime process is started. The default runs it as a
// child process.
func WithLauncher(l Launcher) Option { return func(r *Runtime) { r.launcher = l } }

// WithDialer replaces the network dialer used for the runtime address.
func WithDialer(d Dialer) Option { return func(r *Runtime) { r.dialer = d } }

// WithLogger sets the logger for start-up progress. The default discards everything.
func WithLogger(l zerolog.Logger) Option { return func(r *Runtime) { r.logger = l } }

// WithMetrics reports start-up latency and outcome to c.
func WithMetrics(c *metrics.Collector) Option { return func(r *Runtime) { r.metrics = c } }

// WithPollInterval sets how often readiness is probed after launching.
func WithPollInterval(d time.Duration) Option { return func(r *Runtime) { r.pollInterval = d } }

// New returns an unstarted Runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		launcher:     &ExecLauncher{},
		logger:       zerolog.Nop(),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultOnce    sync.Once
	defaultRuntime *Runtime
)

// Default returns the process-wide Runtime shared by every agent.
func Default() *Runtime {
	defaultOnce.Do(func() { defaultRuntime = New() })
	return defaultRuntime
}

// Configure replaces the options of the process-wide Runtime. It must be called before
// the first Default call, and reports whether it took effect.
func Configure(opts ...Option) bool {
	applied := false
	defaultOnce.Do(func() {
		defaultRuntime = New(opts...)
		applied = true
	})
	return applied
}

// Ready reports whether Ensure has succeeded. It does not wait for a start-up in
// progress.
func (r *Runtime) Ready() bool {
	return r.ready.Load() != nil
}

// Handle returns the started runtime, if any, without waiting for a start-up in
// progress.
func (r *Runtime) Handle() (*Handle, bool) {
	h := r.ready.Load()
	return h, h != nil
}

// Ensure starts the runtime if needed and returns its handle. Concurrent callers block
// until the first one finishes. After a failure every call returns the same error
// without trying again.
func (r *Runtime) Ensure(ctx context.Context) (*Handle, error) {
	if h := r.ready.Load(); h != nil {
		return h, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h := r.ready.Load(); h != nil {
		return h, nil
	}
	if r.err != nil {
		return nil, r.err
	}

	start := time.Now()
	h, err := r.start(ctx)
	r.metrics.BootstrapCompleted(time.Since(start), err)
	if err != nil {
		r.err = fmt.Errorf("%w: %w", ErrBootstrap, err)
		r.logger.Error().Err(err).Msg("Policy runtime bootstrap failed")
		return nil, r.err
	}
	r.ready.Store(h)
	r.logger.Info().
		Str("module", h.Module).
		Strs("factories", h.Factories).
		Dur("elapsed", time.Since(start)).
		Msg("Policy runtime ready")
	return h, nil
}

func (r *Runtime) start(ctx context.Context) (h *Handle, err error) {
	installDir := r.installDir
	if installDir == "" {
		dir, err := config.InstallDir()
		if err != nil {
			return nil, err
		}
		installDir = dir
	}
	path := config.BridgePath(installDir)
	cfg, err := config.LoadBridge(path)
	if err != nil {
		return nil, err
	}
	if err := os.Setenv(ConfigEnv, path); err != nil {
		return nil, fmt.Errorf("set %s: %w", ConfigEnv, err)
	}
	addr := cfg.Runtime.Address

	// A runtime this call started is useless once the bootstrap has failed.
	var proc Process
	defer func() {
		if err != nil && proc != nil {
			if stopErr := proc.Stop(); stopErr != nil {
				r.logger.Warn().Err(stopErr).Msg("Failed to stop policy runtime")
			}
		}
	}()

	if r.probe(ctx, addr, cfg.Runtime.ProbeTimeout) {
		r.logger.Info().Str("addr", addr).Msg("Policy runtime already running")
	} else {
		if proc, err = r.launch(ctx, installDir, path, cfg); err != nil {
			return nil, err
		}
		if err = r.waitReady(ctx, addr, cfg.Runtime, proc); err != nil {
			return nil, err
		}
	}

	conn, err := grpc.NewClient(target(addr), r.dialOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	client := policyrpc.NewClient(conn)
	factories, err := client.Import(ctx, cfg.Policy.Module)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("import %s: %w", cfg.Policy.Module, err)
	}
	return &Handle{
		Config:    cfg,
		Module:    cfg.Policy.Module,
		Factories: factories,
		Client:    client,
		conn:      conn,
	}, nil
}

func (r *Runtime) launch(ctx context.Context, installDir, configPath string, cfg config.Bridge) (Process, error) {
	bin := resolveCommand(installDir, cfg.Runtime.Command[0])
	env := append(os.Environ(),
		PathEnv+"="+installDir,
		ConfigEnv+"="+configPath,
		ListenEnv+"="+cfg.Runtime.Address,
	)
	spec := LaunchSpec{Path: bin, Args: cfg.Runtime.Command[1:], Dir: installDir, Env: env}

	r.logger.Info().Str("path", bin).Strs("args", spec.Args).Msg("Launching policy runtime")
	proc, err := r.launcher.Launch(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("launch policy runtime: %w", err)
	}
	return proc, nil
}

// waitReady polls addr until it serves, proc exits or the start timeout passes.
func (r *Runtime) waitReady(ctx context.Context, addr string, rc config.RuntimeConfig, proc Process) error {
	var exited <-chan struct{}
	if proc != nil {
		exited = proc.Exited()
	}
	deadline := time.Now().Add(rc.StartTimeout)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		if r.probe(ctx, addr, rc.ProbeTimeout) {
			return nil
		}
		select {
		case <-exited:
			return exitError(addr, proc)
		default:
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("policy runtime at %s not ready after %s", addr, rc.StartTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return exitError(addr, proc)
		case <-ticker.C:
		}
	}
}

func exitError(addr string, proc Process) error {
	err := proc.ExitErr()
	if err == nil {
		err = errors.New("exit status 0")
	}
	return fmt.Errorf("policy runtime exited before serving at %s: %w", addr, err)
}

// probe reports whether a runtime answers the health check at addr.
func (r *Runtime) probe(ctx context.Context, addr string, timeout time.Duration) bool {
	conn, err := grpc.NewClient(target(addr), r.dialOptions()...)
	if err != nil {
		return false
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: policyrpc.ServiceName})
	if err != nil {
		r.logger.Debug().Err(err).Str("addr", addr).Msg("Policy runtime probe failed")
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

func (r *Runtime) dialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if r.dialer != nil {
		opts = append(opts, grpc.WithContextDialer(r.dialer))
	}
	return opts
}

// target turns a configured address into a gRPC dial target.
func target(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "passthrough:///" + addr
}

// resolveCommand resolves a configured executable. Paths with a separator are taken
// relative to the install directory; bare names prefer a copy in the install directory
// over PATH.
func resolveCommand(installDir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		return filepath.Join(installDir, filepath.FromSlash(name))
	}
	local := filepath.Join(installDir, name)
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return local
	}
	if found, err := exec.LookPath(name); err == nil {
		return found
	}
	return name
}
