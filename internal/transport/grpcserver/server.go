// Package grpcserver serves the standard gRPC health service, backed by the
// health monitor.
package grpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/redeliver/internal/health"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "redeliver"

// DefaultRefreshInterval is how often the monitor is consulted.
const DefaultRefreshInterval = 10 * time.Second

// Server owns the gRPC server instance.
type Server struct {
	grpc    *grpc.Server
	health  *grpchealth.Server
	monitor *health.Monitor
	log     *slog.Logger
}

// New creates a server. Both statuses start as SERVING; a nil monitor keeps them there.
func New(monitor *health.Monitor, log *slog.Logger, opts ...grpc.ServerOption) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		grpc:    grpc.NewServer(opts...),
		health:  grpchealth.NewServer(),
		monitor: monitor,
		log:     log.With("component", "grpc"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, refreshing the health status from the
// monitor meanwhile.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.log.Info("gRPC server listening", "addr", l.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()

	ticker := time.NewTicker(DefaultRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh maps the monitor report onto the health service: critical is
// NOT_SERVING, anything else SERVING.
func (s *Server) Refresh(ctx context.Context) {
	if s.monitor == nil {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if s.monitor.CheckHealth(ctx).SystemStatus == health.StatusCritical {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.setStatus(status)
}

// Shutdown flips every status to NOT_SERVING and stops gracefully.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
