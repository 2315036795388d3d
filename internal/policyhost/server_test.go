package policyhost_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/game/tictactoe"
	"github.com/cartridge/agentbridge/internal/policyhost"
	"github.com/cartridge/agentbridge/internal/policyhost/policyhosttest"
	"github.com/cartridge/agentbridge/internal/policyrpc"
	"github.com/cartridge/agentbridge/internal/wire"
)

func TestServerRoundTrip(t *testing.T) {
	host := policyhosttest.New(t, policyhost.DefaultRegistry())
	host.Start()
	conn := host.Conn(t)
	client := policyrpc.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: policyrpc.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, health.Status)

	factories, err := client.Import(ctx, policyhost.BuiltinModule)
	require.NoError(t, err)
	assert.Equal(t, []string{"Random", "UCT"}, factories)

	id, err := client.Create(ctx, policyhost.BuiltinModule, "UCT")
	require.NoError(t, err)

	g := tictactoe.Game{}
	require.NoError(t, client.Init(ctx, id, wire.EncodeGame(g), 1))

	state := g.NewContext()
	encoded, err := wire.EncodeContext(g, state)
	require.NoError(t, err)
	raw, err := client.SelectAction(ctx, policyrpc.SelectRequest{
		DelegateID:    id,
		Game:          wire.EncodeGame(g),
		Context:       encoded,
		MaxIterations: 100,
		MaxDepth:      -1,
	})
	require.NoError(t, err)
	move, err := wire.DecodeMove(raw)
	require.NoError(t, err)
	assert.True(t, game.Contains(g.Moves(state), move))

	require.NoError(t, client.Release(ctx, id))
	_, err = client.SelectAction(ctx, policyrpc.SelectRequest{
		DelegateID: id,
		Game:       wire.EncodeGame(g),
		Context:    encoded,
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServerUnknownModule(t *testing.T) {
	host := policyhosttest.New(t, policyhost.DefaultRegistry())
	host.Start()
	client := host.Client(t)

	_, err := client.Import(context.Background(), "no.such.module")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestAdminRoutes(t *testing.T) {
	registry := policyhost.DefaultRegistry()
	svc := policyhost.NewService(registry, zerolog.Nop())
	ctx := context.Background()
	_, err := svc.Import(ctx, policyhost.BuiltinModule)
	require.NoError(t, err)
	id, err := svc.Create(ctx, policyhost.BuiltinModule, "Random")
	require.NoError(t, err)

	srv := httptest.NewServer(policyhost.AdminRoutes(svc, registry, zerolog.Nop()))
	defer srv.Close()

	get := func(path string, out any) int {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		if out != nil {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
		}
		return resp.StatusCode
	}

	var health map[string]string
	assert.Equal(t, http.StatusOK, get("/healthz", &health))
	assert.Equal(t, "ok", health["status"])

	var modules []struct {
		Name      string   `json:"name"`
		Factories []string `json:"factories"`
		Imported  bool     `json:"imported"`
	}
	assert.Equal(t, http.StatusOK, get("/api/v1/modules", &modules))
	require.Len(t, modules, 1)
	assert.Equal(t, policyhost.BuiltinModule, modules[0].Name)
	assert.True(t, modules[0].Imported)

	var delegates []policyhost.DelegateInfo
	assert.Equal(t, http.StatusOK, get("/api/v1/delegates", &delegates))
	require.Len(t, delegates, 1)
	assert.Equal(t, id, delegates[0].ID)

	var one policyhost.DelegateInfo
	assert.Equal(t, http.StatusOK, get("/api/v1/delegates/"+id, &one))
	assert.Equal(t, "Random", one.Factory)

	assert.Equal(t, http.StatusNotFound, get("/api/v1/delegates/nope", nil))
}
