package cache

import (
	"context"
	"testing"
	"time"
)

type movie struct {
	Title string `json:"title"`
}

func TestTTLCache_SetGet(t *testing.T) {
	c, err := NewTTLCache(time.Minute, nil, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := c.Set(ctx, "k", movie{Title: "Heat"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got movie
	ok, err := c.Get(ctx, "k", &got)
	if err != nil || !ok || got.Title != "Heat" {
		t.Fatalf("expected hit Heat, got %v %v %+v", ok, err, got)
	}
	if ok, _ := c.Get(ctx, "missing", &got); ok {
		t.Fatalf("expected miss")
	}
}

func TestTTLCache_Expiry(t *testing.T) {
	c, _ := NewTTLCache(time.Second, nil, "")
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	_ = c.Set(ctx, "k", movie{Title: "x"})

	now = now.Add(2 * time.Second)
	var got movie
	if ok, _ := c.Get(ctx, "k", &got); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if len(c.items) != 0 {
		t.Fatalf("expected expired entry evicted")
	}
}

func TestTTLCache_Invalidate(t *testing.T) {
	c, _ := NewTTLCache(time.Minute, nil, "")
	ctx := context.Background()
	_ = c.Set(ctx, "a", 1)
	_ = c.Set(ctx, "b", 2)

	c.Invalidate("a")
	var v int
	if ok, _ := c.Get(ctx, "a", &v); ok {
		t.Fatalf("expected a dropped")
	}
	if ok, _ := c.Get(ctx, "b", &v); !ok || v != 2 {
		t.Fatalf("expected b kept")
	}
	c.Invalidate("ALL")
	if ok, _ := c.Get(ctx, "b", &v); ok {
		t.Fatalf("expected flush")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	if _, err := NewRedisCache("not-a-url", time.Minute); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}

func TestNewRedisCache_Prefix(t *testing.T) {
	c, err := NewRedisCache("redis://localhost:6379/0", time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()
	if c.Prefix != "moviedetail:" || c.TTL != time.Minute {
		t.Fatalf("unexpected cache %+v", c)
	}
}

var (
	_ Cache = (*TTLCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
