// Copyright (c) 2025 Northbound System
package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/codewatch/internal/apperrors"
	"github.com/northbound/codewatch/internal/config"
)

func testLimiter(t *testing.T, window time.Duration, defaultMax int, perScope ScopeLimits) *RedisLimiter {
	t.Helper()
	ctx := context.Background()
	client, err := (config.RedisConfig{Addr: "127.0.0.1:6379"}).NewRedisClient(ctx)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	l, err := NewRedisLimiter(client, window, defaultMax, perScope)
	require.NoError(t, err)
	return l
}

func TestRedisLimiter_AllowsUpToMaxThenRejects(t *testing.T) {
	l := testLimiter(t, time.Minute, 3, nil)
	ctx := context.Background()
	key := uniqueKey(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "trigger", key))
	}

	err := l.Allow(ctx, "trigger", key)
	require.Error(t, err)
	var rl *apperrors.RateLimited
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, "trigger", rl.Scope)
	assert.Greater(t, rl.RetryAfter, 0)
}

func TestRedisLimiter_PerScopeOverridesDefault(t *testing.T) {
	l := testLimiter(t, time.Minute, 100, ScopeLimits{"trigger": 1})
	ctx := context.Background()
	key := uniqueKey(t)

	require.NoError(t, l.Allow(ctx, "trigger", key))
	err := l.Allow(ctx, "trigger", key)
	require.Error(t, err)

	// "read" falls back to the default of 100 and is unaffected by the
	// trigger scope's separate bucket.
	require.NoError(t, l.Allow(ctx, "read", key))
}

func TestRedisLimiter_ZeroScopeLimitIsUnlimited(t *testing.T) {
	l := testLimiter(t, time.Minute, 1, ScopeLimits{"internal": 0})
	ctx := context.Background()
	key := uniqueKey(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Allow(ctx, "internal", key))
	}
}

func TestRedisLimiter_DistinctKeysHaveIndependentBudgets(t *testing.T) {
	l := testLimiter(t, time.Minute, 1, nil)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "trigger", "user-a"))
	require.NoError(t, l.Allow(ctx, "trigger", "user-b"))
	require.Error(t, l.Allow(ctx, "trigger", "user-a"))
}

func TestNoopLimiter_NeverRejects(t *testing.T) {
	var l NoopLimiter
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(ctx, "trigger", "any-key"))
	}
}

func uniqueKey(t *testing.T) string {
	t.Helper()
	return t.Name() + "-" + time.Now().Format("20060102150405.000000000")
}
