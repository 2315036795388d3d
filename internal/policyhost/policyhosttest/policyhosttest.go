// Package policyhosttest runs a policy host in-process over bufconn.
package policyhosttest

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cartridge/agentbridge/internal/policyhost"
	"github.com/cartridge/agentbridge/internal/policyrpc"
)

// Target is the dial target understood by Host.Dial.
const Target = "passthrough:///policyhost"

// Host is an in-memory policy host. It is not serving until Start is called.
type Host struct {
	Server   *policyhost.Server
	listener *bufconn.Listener
	started  atomic.Bool
	starts   atomic.Int32
}

// New creates a host for registry. The host is stopped when t finishes.
func New(t testing.TB, registry *policyhost.Registry) *Host {
	t.Helper()
	h := &Host{
		Server:   policyhost.NewServer(registry, zerolog.Nop()),
		listener: bufconn.Listen(1 << 20),
	}
	t.Cleanup(h.Server.Stop)
	return h
}

// Start begins serving. Further calls only count.
func (h *Host) Start() {
	h.starts.Add(1)
	if h.started.CompareAndSwap(false, true) {
		go func() { _ = h.Server.Serve(h.listener) }()
	}
}

// Starts reports how many times Start was called.
func (h *Host) Starts() int { return int(h.starts.Load()) }

// Dial connects to the host. Before Start it fails like a refused connection.
func (h *Host) Dial(ctx context.Context, _ string) (net.Conn, error) {
	if !h.started.Load() {
		return nil, &net.OpError{Op: "dial", Net: "bufconn", Err: errRefused}
	}
	return h.listener.DialContext(ctx)
}

// Conn dials the host. The connection is closed when t finishes.
func (h *Host) Conn(t testing.TB) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(Target,
		grpc.WithContextDialer(h.Dial),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial policy host: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Client returns a typed client on a new connection.
func (h *Host) Client(t testing.TB) *policyrpc.Client {
	t.Helper()
	return policyrpc.NewClient(h.Conn(t))
}

var errRefused = errors.New("connection refused")
