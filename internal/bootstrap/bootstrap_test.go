package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/agentbridge/internal/config"
	"github.com/cartridge/agentbridge/internal/policyhost"
	"github.com/cartridge/agentbridge/internal/policyhost/policyhosttest"
)

// installDir creates an install directory whose bridge file holds body.
func installDir(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := config.BridgePath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return dir
}

const inProcessBridge = `
runtime:
  command: ["agentbridge", "policy-host"]
  address: policyhost
  start_timeout: 5s
  probe_timeout: 200ms
policy:
  module: agentbridge.uct
  factory: UCT
`

type fakeRuntime struct {
	host     *policyhosttest.Host
	launches atomic.Int32
	mu       sync.Mutex
	specs    []LaunchSpec
}

func newFakeRuntime(t *testing.T) *fakeRuntime {
	return &fakeRuntime{host: policyhosttest.New(t, policyhost.DefaultRegistry())}
}

func (f *fakeRuntime) Launch(_ context.Context, spec LaunchSpec) (Process, error) {
	f.launches.Add(1)
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	f.host.Start()
	return nil, nil
}

func (f *fakeRuntime) options(dir string) []Option {
	return []Option{
		WithInstallDir(dir),
		WithLauncher(f),
		WithDialer(f.host.Dial),
		WithPollInterval(10 * time.Millisecond),
	}
}

func TestEnsureLaunchesOnce(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	dir := installDir(t, inProcessBridge)
	fake := newFakeRuntime(t)
	rt := New(fake.options(dir)...)
	assert.False(t, rt.Ready())

	h, err := rt.Ensure(context.Background())
	require.NoError(t, err)
	assert.True(t, rt.Ready())
	assert.Equal(t, "agentbridge.uct", h.Module)
	assert.True(t, h.HasFactory("UCT"))
	assert.False(t, h.HasFactory("Nope"))
	assert.Equal(t, config.BridgePath(dir), os.Getenv(ConfigEnv))

	again, err := rt.Ensure(context.Background())
	require.NoError(t, err)
	assert.Same(t, h, again)

	assert.EqualValues(t, 1, fake.launches.Load())
	require.Len(t, fake.specs, 1)
	spec := fake.specs[0]
	assert.Equal(t, []string{"policy-host"}, spec.Args)
	assert.Equal(t, dir, spec.Dir)
	assert.Contains(t, spec.Env, PathEnv+"="+dir)
	assert.Contains(t, spec.Env, ListenEnv+"=policyhost")

	got, ok := rt.Handle()
	require.True(t, ok)
	assert.Same(t, h, got)
}

func TestEnsureConcurrentCallersShareOneStart(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	fake := newFakeRuntime(t)
	rt := New(fake.options(installDir(t, inProcessBridge))...)

	const callers = 16
	handles := make([]*Handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := rt.Ensure(context.Background())
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, fake.launches.Load())
	assert.Equal(t, 1, fake.host.Starts())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	imported := fake.host.Server.Service().Imported()
	assert.Equal(t, []string{policyhost.BuiltinModule}, imported)
}

func TestEnsureReusesRunningRuntime(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	fake := newFakeRuntime(t)
	fake.host.Start()
	rt := New(fake.options(installDir(t, inProcessBridge))...)

	_, err := rt.Ensure(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fake.launches.Load())
}

func TestEnsureFailureIsSticky(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	dir := installDir(t, `
runtime:
  command: ["bin/does-not-exist"]
  address: policyhost
  start_timeout: 1s
  probe_timeout: 100ms
`)
	var launches atomic.Int32
	children := &ExecLauncher{}
	fake := newFakeRuntime(t)
	rt := New(
		WithInstallDir(dir),
		WithDialer(fake.host.Dial),
		WithLauncher(LauncherFunc(func(ctx context.Context, spec LaunchSpec) (Process, error) {
			launches.Add(1)
			assert.Equal(t, filepath.Join(dir, "bin", "does-not-exist"), spec.Path)
			return children.Launch(ctx, spec)
		})),
	)

	_, err := rt.Ensure(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBootstrap)
	assert.False(t, rt.Ready())

	_, again := rt.Ensure(context.Background())
	assert.Same(t, err, again)
	assert.EqualValues(t, 1, launches.Load())
	assert.Empty(t, children.Pids())
}

func TestEnsureMissingBridgeFile(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	fake := newFakeRuntime(t)
	rt := New(fake.options(t.TempDir())...)

	_, err := rt.Ensure(context.Background())
	assert.ErrorIs(t, err, ErrBootstrap)
	assert.Zero(t, fake.launches.Load())
	assert.Empty(t, os.Getenv(ConfigEnv))
}

func TestEnsureUnknownModule(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	body := strings.Replace(inProcessBridge, "module: agentbridge.uct", "module: no.such.module", 1)
	fake := newFakeRuntime(t)
	rt := New(fake.options(installDir(t, body))...)

	_, err := rt.Ensure(context.Background())
	require.ErrorIs(t, err, ErrBootstrap)
	var st interface{ GRPCStatus() *status.Status }
	require.True(t, errors.As(err, &st))
	assert.Equal(t, codes.NotFound, st.GRPCStatus().Code())
	assert.False(t, rt.Ready())
}

func TestEnsureStartTimeout(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	body := strings.Replace(inProcessBridge, "start_timeout: 5s", "start_timeout: 150ms", 1)
	fake := newFakeRuntime(t)
	rt := New(
		WithInstallDir(installDir(t, body)),
		WithDialer(fake.host.Dial),
		WithPollInterval(10*time.Millisecond),
		WithLauncher(LauncherFunc(func(context.Context, LaunchSpec) (Process, error) { return nil, nil })),
	)

	_, err := rt.Ensure(context.Background())
	require.ErrorIs(t, err, ErrBootstrap)
	assert.Contains(t, err.Error(), "not ready after")
}

func TestReadyDoesNotWaitForStartUp(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	fake := newFakeRuntime(t)
	launching := make(chan struct{})
	release := make(chan struct{})
	rt := New(
		WithInstallDir(installDir(t, inProcessBridge)),
		WithDialer(fake.host.Dial),
		WithPollInterval(10*time.Millisecond),
		WithLauncher(LauncherFunc(func(ctx context.Context, spec LaunchSpec) (Process, error) {
			close(launching)
			<-release
			return fake.Launch(ctx, spec)
		})),
	)

	done := make(chan error, 1)
	go func() {
		_, err := rt.Ensure(context.Background())
		done <- err
	}()
	<-launching

	assert.False(t, rt.Ready())
	h, ok := rt.Handle()
	assert.False(t, ok)
	assert.Nil(t, h)

	close(release)
	require.NoError(t, <-done)
	assert.True(t, rt.Ready())
	h, ok = rt.Handle()
	assert.True(t, ok)
	assert.Equal(t, "agentbridge.uct", h.Module)
}

// shellBridge is a bridge file whose runtime is a shell command that never serves.
func shellBridge(t *testing.T, script, startTimeout string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	return installDir(t, `
runtime:
  command: ["/bin/sh", "-c", "`+script+`"]
  address: policyhost
  start_timeout: `+startTimeout+`
  probe_timeout: 100ms
`)
}

func TestEnsureFailsFastWhenRuntimeExits(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	children := &ExecLauncher{}
	fake := newFakeRuntime(t)
	rt := New(
		WithInstallDir(shellBridge(t, "exit 3", "30s")),
		WithDialer(fake.host.Dial),
		WithPollInterval(10*time.Millisecond),
		WithLauncher(children),
	)

	start := time.Now()
	_, err := rt.Ensure(context.Background())
	require.ErrorIs(t, err, ErrBootstrap)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Contains(t, err.Error(), "exited before serving")
	assert.Contains(t, err.Error(), "exit status 3")
	assert.False(t, rt.Ready())
	assert.Len(t, children.Pids(), 1)
	assert.Zero(t, children.Running())
}

func TestEnsureStopsRuntimeAfterStartTimeout(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	children := &ExecLauncher{}
	fake := newFakeRuntime(t)
	rt := New(
		WithInstallDir(shellBridge(t, "exec sleep 30", "200ms")),
		WithDialer(fake.host.Dial),
		WithPollInterval(10*time.Millisecond),
		WithLauncher(children),
	)

	start := time.Now()
	_, err := rt.Ensure(context.Background())
	require.ErrorIs(t, err, ErrBootstrap)
	assert.Contains(t, err.Error(), "not ready after")
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Len(t, children.Pids(), 1)
	assert.Zero(t, children.Running())
}

func TestExecLauncherStop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	children := &ExecLauncher{}
	proc, err := children.Launch(context.Background(), LaunchSpec{Path: "/bin/sh", Args: []string{"-c", "exec sleep 30"}})
	require.NoError(t, err)
	assert.Equal(t, 1, children.Running())

	require.NoError(t, proc.Stop())
	select {
	case <-proc.Exited():
	default:
		t.Fatal("process still running after Stop")
	}
	assert.Error(t, proc.ExitErr())
	assert.Zero(t, children.Running())
	assert.NoError(t, proc.Stop())
}

func TestResolveCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "host"), []byte("#!/bin/sh\n"), 0o755))

	assert.Equal(t, "/usr/bin/env", resolveCommand(dir, "/usr/bin/env"))
	assert.Equal(t, filepath.Join(dir, "bin", "host"), resolveCommand(dir, "bin/host"))
	assert.Equal(t, filepath.Join(dir, "host"), resolveCommand(dir, "host"))
	assert.Equal(t, "definitely-not-on-path-xyz", resolveCommand(dir, "definitely-not-on-path-xyz"))
}

func TestTarget(t *testing.T) {
	assert.Equal(t, "passthrough:///127.0.0.1:50061", target("127.0.0.1:50061"))
	assert.Equal(t, "unix:///tmp/policy.sock", target("unix:///tmp/policy.sock"))
}

func TestConfigureAfterDefault(t *testing.T) {
	first := Default()
	assert.False(t, Configure(WithInstallDir(t.TempDir())))
	assert.Same(t, first, Default())
}
