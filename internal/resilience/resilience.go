// Copyright (c) 2025 Northbound System
package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/northbound/codewatch/internal/apperrors"
)

// Breaker wraps one upstream dependency (a vector index, an object store,
// an LLM provider, a git remote) behind a gobreaker circuit breaker, so a
// run of failures trips it open and fails fast instead of piling up
// timeouts against a dependency that is already down.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New builds a Breaker named for the upstream it guards. It trips after 5
// consecutive failures and stays open for 30s before allowing a single
// trial request through.
func New(name string) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs fn through the breaker. A trip or a failure inside fn is
// returned wrapped in *apperrors.UpstreamUnavailable so callers can
// classify it uniformly regardless of which upstream failed.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		return &apperrors.UpstreamUnavailable{Upstream: b.name, Err: err}
	}
	return nil
}

// State reports the breaker's current state for health/metrics surfaces.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
