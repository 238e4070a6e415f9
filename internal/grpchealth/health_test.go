package grpchealth

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	srv := NewServer(zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(listener) }()
	t.Cleanup(func() {
		srv.Stop()
		if err := <-done; err != nil {
			t.Errorf("serve returned %v", err)
		}
	})
	return srv, listener.Addr().String()
}

func TestCheckReflectsReadiness(t *testing.T) {
	srv, addr := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	status, err := Check(ctx, addr, Service, zap.NewNop())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before models load, got %v", status)
	}

	srv.MarkServing()
	for _, service := range []string{"", Service} {
		status, err = Check(ctx, addr, service, zap.NewNop())
		if err != nil {
			t.Fatalf("check %q: %v", service, err)
		}
		if status != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("expected SERVING for %q, got %v", service, status)
		}
	}
}

func TestCheckUnknownService(t *testing.T) {
	_, addr := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := Check(ctx, addr, "other.Service", zap.NewNop()); err == nil {
		t.Fatal("expected NotFound error for unregistered service")
	}
}

func TestCheckDialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := Check(ctx, addr, "", zap.NewNop()); err == nil {
		t.Fatal("expected dial error")
	}
}
