package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// LaunchSpec describes the policy runtime process to start.
type LaunchSpec struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Process is a launched policy runtime.
type Process interface {
	// Exited is closed once the process has ended.
	Exited() <-chan struct{}
	// ExitErr reports how the process ended. It is only meaningful after Exited is
	// closed; a clean exit returns nil.
	ExitErr() error
	// Stop terminates the process and waits for it to end.
	Stop() error
}

// Launcher starts the policy runtime. It must return once the process is started; the
// bootstrap polls for readiness itself. A nil Process means the launcher does not
// track what it started.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, spec LaunchSpec) (Process, error)

func (f LauncherFunc) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	return f(ctx, spec)
}

// ExecLauncher runs the runtime as a child process. The child's stdin is a pipe held
// open for the life of this process, so a runtime started with --exit-on-stdin-close
// stops when its host goes away. Every child is reaped when it exits.
type ExecLauncher struct {
	Stdout io.Writer
	Stderr io.Writer

	mu       sync.Mutex
	children []*child
}

type child struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	exited chan struct{}
	err    error
}

func (c *child) wait() {
	c.err = c.cmd.Wait()
	close(c.exited)
}

func (c *child) Exited() <-chan struct{} { return c.exited }

func (c *child) ExitErr() error {
	select {
	case <-c.exited:
		return c.err
	default:
		return nil
	}
}

// Stop closes the child's stdin and kills it if it is still running.
func (c *child) Stop() error {
	_ = c.stdin.Close()
	select {
	case <-c.exited:
		return nil
	default:
	}
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %d: %w", c.cmd.Process.Pid, err)
	}
	<-c.exited
	return nil
}

func (l *ExecLauncher) Launch(_ context.Context, spec LaunchSpec) (Process, error) {
	// Not CommandContext: the runtime outlives the call that started it.
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stderr
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	c := &child{cmd: cmd, stdin: stdin, exited: make(chan struct{})}
	go c.wait()

	l.mu.Lock()
	l.children = append(l.children, c)
	l.mu.Unlock()
	return c, nil
}

// Pids lists the processes started so far.
func (l *ExecLauncher) Pids() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	pids := make([]int, 0, len(l.children))
	for _, c := range l.children {
		pids = append(pids, c.cmd.Process.Pid)
	}
	return pids
}

// Running counts started processes that have not exited yet.
func (l *ExecLauncher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.children {
		select {
		case <-c.exited:
		default:
			n++
		}
	}
	return n
}
