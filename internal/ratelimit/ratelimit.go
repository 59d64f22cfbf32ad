// Copyright (c) 2025 Northbound System

// Package ratelimit implements the dispatch-time back-pressure control
// from spec.md §5: a fixed-window per-user (or, more generally,
// per-scope-and-key) rate limit, default 60 requests per 60-second
// window. The limiter is advisory process-local-friendly state backed by
// Redis so that multiple API replicas agree on the same window without
// coordinating directly with each other.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/northbound/codewatch/internal/apperrors"
	"github.com/northbound/codewatch/internal/logger"
	"github.com/northbound/codewatch/internal/metrics"
)

// DefaultWindow and DefaultMaxRequests mirror spec.md §5's "default
// 60/min".
const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 60
)

// Limiter enforces a fixed-window quota per (scope, key) pair. Allow
// returns an *apperrors.RateLimited error once the scope's quota for the
// current window is exceeded; callers map that to an HTTP 429 with
// Retry-After.
type Limiter interface {
	Allow(ctx context.Context, scope, key string) error
}

// ScopeLimits overrides the default max-requests-per-window for specific
// scopes (e.g. "trigger" vs "read"), per spec.md §6's "per-scope limits".
// A scope absent from the map falls back to the limiter's default. A
// limit of 0 means the scope is unlimited.
type ScopeLimits map[string]int

// RedisLimiter implements Limiter with Redis INCR+EXPIRE fixed windows,
// following internal/queue.RedisQueue's client-wrapping idiom: the
// constructor pings on construction and every operation threads ctx
// through to the underlying client.
type RedisLimiter struct {
	client     *redis.Client
	window     time.Duration
	defaultMax int
	perScope   ScopeLimits
	metrics    *metrics.OperationalMetrics
}

// NewRedisLimiter builds a RedisLimiter and pings client to fail fast on
// a bad connection, matching queue.NewRedisQueue's construction-time
// check.
func NewRedisLimiter(client *redis.Client, window time.Duration, defaultMax int, perScope ScopeLimits) (*RedisLimiter, error) {
	return NewRedisLimiterWithMetrics(client, window, defaultMax, perScope, nil)
}

// NewRedisLimiterWithMetrics builds a RedisLimiter that additionally
// records every rejection to om. A nil om behaves like NewRedisLimiter.
func NewRedisLimiterWithMetrics(client *redis.Client, window time.Duration, defaultMax int, perScope ScopeLimits, om *metrics.OperationalMetrics) (*RedisLimiter, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	if defaultMax <= 0 {
		defaultMax = DefaultMaxRequests
	}

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.GetDefault().Error("rate limiter redis ping failed", zap.Error(err))
		return nil, err
	}

	return &RedisLimiter{client: client, window: window, defaultMax: defaultMax, perScope: perScope, metrics: om}, nil
}

func (l *RedisLimiter) maxFor(scope string) int {
	if n, ok := l.perScope[scope]; ok {
		return n
	}
	return l.defaultMax
}

// Allow increments the counter for (scope, key) in the current fixed
// window and compares it against the scope's quota. The window boundary
// is derived from wall-clock time divided into window-sized buckets, so
// concurrent callers across replicas land on the same Redis key without
// any coordination beyond the shared Redis instance.
func (l *RedisLimiter) Allow(ctx context.Context, scope, key string) error {
	max := l.maxFor(scope)
	if max <= 0 {
		return nil
	}

	windowSeconds := int64(l.window / time.Second)
	bucket := time.Now().UTC().Unix() / windowSeconds
	bucketKey := fmt.Sprintf("ratelimit:%s:%s:%d", scope, key, bucket)

	count, err := l.client.Incr(ctx, bucketKey).Result()
	if err != nil {
		return fmt.Errorf("incr %s: %w", bucketKey, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, bucketKey, l.window).Err(); err != nil {
			logger.GetDefault().Warn("rate limiter failed to set bucket expiry",
				zap.String("key", bucketKey), zap.Error(err))
		}
	}

	if int(count) > max {
		if l.metrics != nil {
			l.metrics.RecordRateLimitRejected(ctx, scope)
		}
		return &apperrors.RateLimited{Scope: scope, RetryAfter: retryAfterSeconds(windowSeconds)}
	}
	return nil
}

func retryAfterSeconds(windowSeconds int64) int {
	if windowSeconds <= 0 {
		return 1
	}
	elapsed := time.Now().UTC().Unix() % windowSeconds
	return int(windowSeconds - elapsed)
}

// NoopLimiter never rejects a request. It satisfies Limiter for
// deployments that run with rate_limit.enabled=false (spec.md §6's
// enabled flag), so the server's middleware chain does not need a
// conditional around whether a limiter is installed.
type NoopLimiter struct{}

// Allow always returns nil.
func (NoopLimiter) Allow(context.Context, string, string) error { return nil }
