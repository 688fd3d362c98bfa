package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const (
	rateLimitPrefix = "ratelimit:"
)

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts requests per key in fixed one-minute windows
type RateLimiter struct {
	client *Client
	clock  clockwork.Clock
	limit  int
}

// NewRateLimiter creates a limiter allowing requestsPerMinute plus burst per
// window. Windows follow clock; nil uses the wall clock.
func NewRateLimiter(client *Client, requestsPerMinute, burst int, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		client: client,
		clock:  clock,
		limit:  requestsPerMinute + burst,
	}
}

func rateLimitKey(scope, key string, windowStart time.Time) string {
	return fmt.Sprintf("%s%s:%s:%d", rateLimitPrefix, scope, key, windowStart.Unix())
}

// decide turns the window's request count into a decision
func decide(count int64, limit int, windowEnd time.Time) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   windowEnd,
	}
}

// Allow records one request for key within scope and reports whether it fits the window
func (r *RateLimiter) Allow(ctx context.Context, scope, key string) (Decision, error) {
	windowStart := r.clock.Now().Truncate(time.Minute)
	windowEnd := windowStart.Add(time.Minute)
	fullKey := rateLimitKey(scope, key, windowStart)

	pipe := r.client.rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	// keys are per window; expire them once the window is over
	pipe.ExpireNX(ctx, fullKey, 2*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Decision{}, fmt.Errorf("failed to execute rate limit check: %w", err)
	}

	return decide(incrCmd.Val(), r.limit, windowEnd), nil
}

// Reset clears the current window for key within scope
func (r *RateLimiter) Reset(ctx context.Context, scope, key string) error {
	windowStart := r.clock.Now().Truncate(time.Minute)
	return r.client.rdb.Del(ctx, rateLimitKey(scope, key, windowStart)).Err()
}
