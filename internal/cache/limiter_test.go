package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/branchwise/branchwise/pkg/config"
)

func newRedisCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := New(&config.RedisConfig{URL: "redis://" + mr.Addr(), Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestCache_Incr(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(ctx, "counter", time.Minute)
		if err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if n != want {
			t.Errorf("Incr() = %d, want %d", n, want)
		}
	}

	// The TTL is set on the first hit and left alone afterwards
	ttl := mr.TTL("branchwise:counter")
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within (0, 1m]", ttl)
	}

	if err := c.Health(ctx); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}

func TestLimiter_Allow(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	limiter := NewLimiter(c, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow(ctx, "content.toggle_like", "u1") {
			t.Fatalf("Allow() = false on hit %d, want true", i+1)
		}
	}
	if limiter.Allow(ctx, "content.toggle_like", "u1") {
		t.Error("Allow() = true past the limit, want false")
	}

	// Keys are per method and user
	if !limiter.Allow(ctx, "content.toggle_like", "u2") {
		t.Error("Allow() for another user = false, want true")
	}
	if !limiter.Allow(ctx, "content.report", "u1") {
		t.Error("Allow() for another method = false, want true")
	}

	mr.FastForward(time.Minute)
	if !limiter.Allow(ctx, "content.toggle_like", "u1") {
		t.Error("Allow() after the window = false, want true")
	}
}

func TestLimiter_FailsOpen(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	limiter := NewLimiter(c, 1, time.Minute)

	if !limiter.Allow(ctx, "content.report", "u1") {
		t.Fatal("Allow() = false on first hit")
	}
	if limiter.Allow(ctx, "content.report", "u1") {
		t.Fatal("Allow() = true past the limit")
	}

	mr.Close()
	if !limiter.Allow(ctx, "content.report", "u1") {
		t.Error("Allow() with Redis down = false, want true")
	}
	if err := c.Health(ctx); err == nil {
		t.Error("Health() with Redis down = nil, want error")
	}
}
