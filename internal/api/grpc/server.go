// Package grpcapi exposes the gRPC control plane: standard health checking
// with a per-session service status, and reflection for grpcurl.
package grpcapi

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-speech-session-service/internal/events"
	"ai-speech-session-service/internal/observability"
	"ai-speech-session-service/internal/observability/metrics"
)

// SessionService is the health service name that reports SERVING while a
// transcription session is running.
const SessionService = "ai.speech.session.Session"

// Server wraps a gRPC server with the health service registered.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewServer builds the gRPC server. The overall service ("") is SERVING
// immediately; SessionService starts NOT_SERVING.
func NewServer(logger zerolog.Logger, m *metrics.Metrics) *Server {
	logger = logger.With().Str("component", "grpc").Logger()

	g := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(logger, m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(logger, m)),
	)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(SessionService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	return &Server{grpc: g, health: hs, logger: logger}
}

// Attach mirrors session lifecycle events into the SessionService status.
func (s *Server) Attach(bus *events.Bus) (unsubscribe func()) {
	return bus.Subscribe(s.Handle)
}

// Handle updates the session health status from a bus event.
func (s *Server) Handle(ev events.Event) {
	switch ev.Kind {
	case events.SessionStarted:
		s.health.SetServingStatus(SessionService, grpc_health_v1.HealthCheckResponse_SERVING)
	case events.SessionCompleted:
		s.health.SetServingStatus(SessionService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
}

// Check answers a health check in process; used by tests and the HTTP
// readiness probe.
func (s *Server) Check(ctx context.Context, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}

// Serve blocks serving on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server started")
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks everything NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.logger.Info().Msg("shutting down gRPC server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
