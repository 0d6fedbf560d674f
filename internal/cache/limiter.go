package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/branchwise/branchwise/pkg/logging"
)

// Limiter is a fixed-window request counter kept in Redis
type Limiter struct {
	cache  *Cache
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewLimiter allows limit hits per key per window. A nil cache or a
// non-positive limit disables limiting.
func NewLimiter(c *Cache, limit int, window time.Duration) *Limiter {
	return &Limiter{
		cache:  c,
		limit:  limit,
		window: window,
		logger: logging.WithComponent("limiter"),
	}
}

// Allow counts one hit for the key parts and reports whether it is within
// the limit. Redis failures let the hit through.
func (l *Limiter) Allow(ctx context.Context, parts ...string) bool {
	if l == nil || l.limit <= 0 || !l.cache.Enabled() {
		return true
	}

	key := "rl:" + HashKey(parts...)
	n, err := l.cache.Incr(ctx, key, l.window)
	if err != nil {
		l.logger.Warn("Rate limit check failed", zap.Error(err))
		return true
	}
	return n <= int64(l.limit)
}
