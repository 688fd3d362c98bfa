package redis

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	reset := time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC)

	d := decide(1, 3, reset)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
	assert.Equal(t, 3, d.Limit)
	assert.Equal(t, reset, d.ResetAt)

	d = decide(3, 3, reset)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d = decide(7, 3, reset)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestRateLimitKey_ChangesPerWindow(t *testing.T) {
	w1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w2 := w1.Add(time.Minute)

	assert.Equal(t, "ratelimit:send:u1:"+"1772359200", rateLimitKey("send", "u1", w1))
	assert.NotEqual(t, rateLimitKey("send", "u1", w1), rateLimitKey("send", "u1", w2))
}

func TestRateLimiter_WindowRollover(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC))
	limiter := NewRateLimiter(client, 1, 1, clock)

	for i, want := range []bool{true, true, false} {
		d, err := limiter.Allow(ctx, "send", "u1")
		require.NoError(t, err)
		assert.Equal(t, want, d.Allowed, "request %d", i+1)
		assert.Equal(t, time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC), d.ResetAt)
	}

	// other keys have their own window
	d, err := limiter.Allow(ctx, "send", "u2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	clock.Advance(30 * time.Second)
	d, err = limiter.Allow(ctx, "send", "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC), d.ResetAt)

	require.NoError(t, limiter.Reset(ctx, "send", "u1"))
	d, err = limiter.Allow(ctx, "send", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Remaining)
}
