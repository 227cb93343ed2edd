package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vietddude/redeliver/internal/health"
)

const bufSize = 1 << 20

func dial(t *testing.T, s *Server) (healthpb.HealthClient, context.CancelFunc) {
	t.Helper()
	lis := bufconn.Listen(bufSize)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx, lis)
		close(done)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	stop := func() {
		_ = conn.Close()
		cancel()
		<-done
	}
	t.Cleanup(func() {
		if ctx.Err() == nil {
			stop()
		}
	})
	return healthpb.NewHealthClient(conn), stop
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return res.GetStatus()
}

func TestHealthOverGRPC(t *testing.T) {
	c, _ := dial(t, New(nil, nil))

	for _, service := range []string{"", ServiceName} {
		if got := check(t, c, service); got != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("service %q: expected SERVING, got %s", service, got)
		}
	}
}

func TestRefreshFollowsMonitor(t *testing.T) {
	var down atomic.Bool
	monitor := health.NewMonitor(health.Check{
		Name:     "database",
		Critical: true,
		Probe: func(ctx context.Context) error {
			if down.Load() {
				return errors.New("refused")
			}
			return nil
		},
	})
	monitor.SetCacheTTL(0)

	s := New(monitor, nil)
	c, _ := dial(t, s)

	down.Store(true)
	s.Refresh(context.Background())
	if got := check(t, c, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %s", got)
	}

	down.Store(false)
	s.Refresh(context.Background())
	if got := check(t, c, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %s", got)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	_, stop := dial(t, New(nil, nil))

	finished := make(chan struct{})
	go func() {
		stop()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
