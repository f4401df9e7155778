package natsconn

import (
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// closedURL returns a nats:// URL on a local port with no listener.
func closedURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return "nats://" + addr
}

func TestEnvInt_RejectsNegativeAndGarbage(t *testing.T) {
	for _, v := range []string{"-1", "three", " "} {
		t.Setenv("NATSCONN_TEST_INT", v)
		if got := envInt("NATSCONN_TEST_INT", 5); got != 5 {
			t.Fatalf("value %q: expected fallback 5, got %d", v, got)
		}
	}
	t.Setenv("NATSCONN_TEST_INT", " 7 ")
	if got := envInt("NATSCONN_TEST_INT", 5); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestEnvDuration_RejectsNonPositive(t *testing.T) {
	for _, v := range []string{"0s", "-2s", "soon"} {
		t.Setenv("NATSCONN_TEST_DUR", v)
		if got := envDuration("NATSCONN_TEST_DUR", 2*time.Second); got != 2*time.Second {
			t.Fatalf("value %q: expected fallback 2s, got %s", v, got)
		}
	}
	t.Setenv("NATSCONN_TEST_DUR", "150ms")
	if got := envDuration("NATSCONN_TEST_DUR", 2*time.Second); got != 150*time.Millisecond {
		t.Fatalf("expected 150ms, got %s", got)
	}
}

func TestConnect_UnreachableNamedClientFailsFast(t *testing.T) {
	url := closedURL(t)
	start := time.Now()
	_, err := Connect(Options{
		URL:           url,
		Name:          "moviedetail-test",
		MaxReconnects: 1,
		ReconnectWait: 10 * time.Millisecond,
		Logger:        zap.NewNop(),
	})
	if err == nil {
		t.Fatal("expected error connecting to closed port")
	}
	if !strings.Contains(err.Error(), url) || !strings.Contains(err.Error(), "max_reconnects=1") {
		t.Fatalf("expected url and policy in error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("expected fail-fast, took %s", time.Since(start))
	}
}

func TestConnect_EnvFallbacks(t *testing.T) {
	url := closedURL(t)
	t.Setenv("NATS_URL", " "+url+" ")
	t.Setenv("NATS_MAX_RECONNECTS", "3")
	t.Setenv("NATS_RECONNECT_WAIT", "25ms")

	_, err := Connect(Options{Name: "moviedetail-test"})
	if err == nil {
		t.Fatal("expected error connecting to closed port")
	}
	for _, want := range []string{url, "max_reconnects=3", "wait=25ms"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error, got %v", want, err)
		}
	}
}
