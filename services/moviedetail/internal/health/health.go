// Package health mirrors upstream circuit-breaker state into the gRPC
// health service and the HTTP readiness probe.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/movie-discovery/internal/platform/logging"
)

// Dependency is one upstream guarded by a breaker. A critical dependency
// with an open breaker takes the whole service out of rotation.
type Dependency struct {
	Name     string
	Breaker  *gobreaker.CircuitBreaker
	Critical bool
}

type Monitor struct {
	srv  *health.Server
	deps []Dependency
	log  *zap.Logger

	mu      sync.Mutex
	serving map[string]bool
}

func NewMonitor(log *zap.Logger, deps ...Dependency) *Monitor {
	m := &Monitor{
		srv:     health.NewServer(),
		deps:    deps,
		log:     logging.OrNop(log),
		serving: make(map[string]bool),
	}
	m.Update()
	return m
}

// Register exposes the health service on s.
func (m *Monitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.srv)
}

// Server returns the underlying health server.
func (m *Monitor) Server() healthpb.HealthServer { return m.srv }

// Update recomputes every status from the current breaker states.
func (m *Monitor) Update() {
	overall := true
	for _, d := range m.deps {
		ok := d.Breaker == nil || d.Breaker.State() != gobreaker.StateOpen
		m.set(d.Name, ok)
		if d.Critical && !ok {
			overall = false
		}
	}
	m.set("", overall)
}

func (m *Monitor) set(service string, ok bool) {
	m.mu.Lock()
	prev, seen := m.serving[service]
	m.serving[service] = ok
	m.mu.Unlock()
	if seen && prev == ok {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.srv.SetServingStatus(service, status)
	if seen {
		m.log.Info("health status change", zap.String("service", service), zap.String("status", status.String()))
	}
}

// Ready backs /readyz.
func (m *Monitor) Ready() error {
	m.Update()
	for _, d := range m.deps {
		if d.Critical && d.Breaker != nil && d.Breaker.State() == gobreaker.StateOpen {
			return fmt.Errorf("%s circuit open", d.Name)
		}
	}
	return nil
}

// Run refreshes statuses every interval until ctx is done, then marks
// everything NOT_SERVING.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.srv.Shutdown()
			return
		case <-t.C:
			m.Update()
		}
	}
}
