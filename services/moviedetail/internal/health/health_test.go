package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/movie-discovery/services/moviedetail/internal/upstream"
)

func status(t *testing.T, m *Monitor, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := m.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func trip(cb *gobreaker.CircuitBreaker) {
	_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
}

func TestMonitor_AllClosedServing(t *testing.T) {
	m := NewMonitor(nil,
		Dependency{Name: "interaction", Breaker: upstream.NewBreaker("interaction", upstream.BreakerConfig{}, nil), Critical: true},
		Dependency{Name: "metadata", Breaker: upstream.NewBreaker("metadata", upstream.BreakerConfig{}, nil)},
	)
	for _, svc := range []string{"", "interaction", "metadata"} {
		if got := status(t, m, svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("expected SERVING for %q, got %s", svc, got)
		}
	}
	if err := m.Ready(); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
}

func TestMonitor_CriticalOpen(t *testing.T) {
	cb := upstream.NewBreaker("interaction", upstream.BreakerConfig{FailureThreshold: 1}, nil)
	m := NewMonitor(nil, Dependency{Name: "interaction", Breaker: cb, Critical: true})
	trip(cb)

	if err := m.Ready(); err == nil {
		t.Fatalf("expected not ready")
	}
	if got := status(t, m, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", got)
	}
}

func TestMonitor_OptionalOpenKeepsServing(t *testing.T) {
	cb := upstream.NewBreaker("metadata", upstream.BreakerConfig{FailureThreshold: 1}, nil)
	m := NewMonitor(nil, Dependency{Name: "metadata", Breaker: cb})
	trip(cb)
	m.Update()

	if got := status(t, m, "metadata"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected metadata NOT_SERVING, got %s", got)
	}
	if got := status(t, m, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected overall SERVING, got %s", got)
	}
}

func TestMonitor_RunShutdown(t *testing.T) {
	m := NewMonitor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return")
	}
	if got := status(t, m, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %s", got)
	}
}
