package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"

	"github.com/example/movie-discovery/internal/platform/httpserver"
)

type statusErr int

func (e statusErr) Error() string   { return "status" }
func (e statusErr) HTTPStatus() int { return int(e) }

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	cb := NewBreaker("test", BreakerConfig{FailureThreshold: 2}, nil)
	for i := 0; i < 5; i++ {
		_, _ = Execute(cb, func() (int, error) { return 0, statusErr(http.StatusForbidden) })
	}
	if cb.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed breaker, got %s", cb.State())
	}
}

func TestBreaker_ServerErrorsTrip(t *testing.T) {
	cb := NewBreaker("test", BreakerConfig{FailureThreshold: 2}, nil)
	for i := 0; i < 2; i++ {
		_, _ = Execute(cb, func() (int, error) { return 0, statusErr(http.StatusBadGateway) })
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", cb.State())
	}
	_, err := Execute(cb, func() (int, error) { return 1, nil })
	if !IsOpen(err) {
		t.Fatalf("expected open-state error, got %v", err)
	}
}

func TestExecute_NilBreaker(t *testing.T) {
	v, err := Execute(nil, func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("expected ok, got %q %v", v, err)
	}
	boom := errors.New("boom")
	if _, err := Execute(nil, func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestDecorate(t *testing.T) {
	ctx := httpserver.WithRequestID(context.Background(), "rid-1")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	Decorate(ctx, req, "tok")
	if got := req.Header.Get("X-Request-Id"); got != "rid-1" {
		t.Fatalf("expected rid-1, got %q", got)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("expected bearer header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	Decorate(context.Background(), req, "")
	if req.Header.Get("Authorization") != "" || req.Header.Get("X-Request-Id") != "" {
		t.Fatalf("expected no headers")
	}
}
