package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter throttles login attempts in fixed windows. Counters live in
// Redis so every API replica sees the same totals.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	base := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if base == "" {
		base = "zimproperty"
	}
	return &RedisRateLimiter{client: client, prefix: base + ":rate_limit"}
}

// ConsumeRateLimit records one attempt for subject under scope and returns the
// attempt count inside the current window plus the seconds until it resets.
// A nil client or non-positive limit disables throttling.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}
	if window < time.Second {
		window = time.Second
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, strings.ToLower(subject))

	// INCR, EXPIRE NX and PTTL run in one MULTI so the window starts on the
	// first attempt and is never extended by later ones.
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("login throttle: %w", err)
	}
	return int(incr.Val()), retryAfterSeconds(ttl.Val(), window), nil
}

// retryAfterSeconds rounds the remaining window up to whole seconds. Redis
// reports a negative TTL when the key has none, in which case the full window
// applies.
func retryAfterSeconds(ttl, window time.Duration) int {
	if ttl < 0 {
		ttl = window
	}
	seconds := int((ttl + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
