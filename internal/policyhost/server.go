package policyhost

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cartridge/agentbridge/internal/policyrpc"
)

// Config holds the listen addresses of a policy host.
type Config struct {
	// Listen is host:port or unix:///path/to/socket.
	Listen string
	// AdminAddr serves the admin HTTP API when set.
	AdminAddr       string
	ShutdownTimeout time.Duration
}

// Server hosts the policy service, the gRPC health service and the admin API.
type Server struct {
	registry *Registry
	svc      *Service
	grpc     *grpc.Server
	health   *health.Server
	logger   zerolog.Logger
}

// NewServer wires a Service for registry onto a new gRPC server.
func NewServer(registry *Registry, logger zerolog.Logger) *Server {
	s := &Server{
		registry: registry,
		svc:      NewService(registry, logger),
		health:   health.NewServer(),
		logger:   logger,
	}
	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(s.loggingInterceptor))
	policyrpc.Register(s.grpc, s.svc)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(policyrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}

// Service returns the policy service.
func (s *Server) Service() *Service { return s.svc }

// Serve accepts gRPC connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop shuts the gRPC server down immediately.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.Stop()
}

// Run listens on cfg.Listen, optionally serves the admin API, and blocks until ctx is
// cancelled, then stops gracefully.
func (s *Server) Run(ctx context.Context, cfg Config) error {
	lis, err := Listen(cfg.Listen)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info().Str("addr", lis.Addr().String()).Msg("Policy host listening")
		if err := s.grpc.Serve(lis); err != nil {
			errCh <- fmt.Errorf("serve grpc: %w", err)
		}
	}()

	var admin *http.Server
	if cfg.AdminAddr != "" {
		admin = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           AdminRoutes(s.svc, s.registry, s.logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			s.logger.Info().Str("addr", cfg.AdminAddr).Msg("Admin API listening")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve admin: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down policy host")
	case err := <-errCh:
		s.Stop()
		return err
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("Admin shutdown failed")
		}
	}

	s.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-shutdownCtx.Done():
		s.logger.Warn().Msg("Shutdown timeout exceeded, forcing stop")
		s.grpc.Stop()
	case <-stopped:
		s.logger.Info().Msg("Policy host stopped gracefully")
	}
	return nil
}

// Listen opens a TCP listener, or a unix socket for unix:// addresses.
func Listen(addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		return net.Listen("unix", path)
	}
	return net.Listen("tcp", addr)
}

func (s *Server) loggingInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	event := s.logger.Debug()
	if err != nil {
		event = s.logger.Warn().Err(err)
	}
	event.Str("method", info.FullMethod).Dur("duration", time.Since(start)).Msg("Policy call")
	return resp, err
}
