package worker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, perMinute, perDay int) *OrgRateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewOrgRateLimiter(client, perMinute, perDay)
}

func TestOrgRateLimiterAllowsUnderLimit(t *testing.T) {
	limiter := newTestLimiter(t, 10, 100)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, wait, err := limiter.Allow(ctx, "org-1", 1)
		require.NoError(t, err)
		assert.True(t, allowed, "send %d should be allowed", i+1)
		assert.Zero(t, wait)
	}
}

func TestOrgRateLimiterDeniesOverMinuteLimit(t *testing.T) {
	limiter := newTestLimiter(t, 3, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow(ctx, "org-1", 1)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, wait, err := limiter.Allow(ctx, "org-1", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, wait.Seconds(), 0.0)
}

func TestOrgRateLimiterDeniedRequestConsumesNoQuota(t *testing.T) {
	limiter := newTestLimiter(t, 5, 100)
	ctx := context.Background()

	// A batch bigger than the remaining quota is denied whole.
	allowed, _, err := limiter.Allow(ctx, "org-1", 10)
	require.NoError(t, err)
	require.False(t, allowed)

	// The denial must not have incremented anything.
	allowed, _, err = limiter.Allow(ctx, "org-1", 5)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestOrgRateLimiterIsolatesOrganizations(t *testing.T) {
	limiter := newTestLimiter(t, 1, 100)
	ctx := context.Background()

	allowed, _, err := limiter.Allow(ctx, "org-1", 1)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = limiter.Allow(ctx, "org-1", 1)
	require.NoError(t, err)
	assert.False(t, allowed, "org-1 is out of quota")

	allowed, _, err = limiter.Allow(ctx, "org-2", 1)
	require.NoError(t, err)
	assert.True(t, allowed, "org-2 has its own counters")
}

func TestOrgRateLimiterUsage(t *testing.T) {
	limiter := newTestLimiter(t, 10, 100)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _, err := limiter.Allow(ctx, "org-1", 1)
		require.NoError(t, err)
	}

	usage, err := limiter.Usage(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), usage["minute_current"])
	assert.Equal(t, int64(4), usage["daily_current"])
	assert.Equal(t, int64(10), usage["minute_limit"])
	assert.Equal(t, int64(100), usage["daily_limit"])
}
