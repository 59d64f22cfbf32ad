// Copyright (c) 2025 Northbound System
package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/codewatch/internal/apperrors"
)

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	b := New("vectordb")
	err := b.Do(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
}

func TestBreaker_WrapsFailureAsUpstreamUnavailable(t *testing.T) {
	b := New("vectordb")
	failure := errors.New("connection refused")

	err := b.Do(context.Background(), func(ctx context.Context) error { return failure })
	require.Error(t, err)
	var target *apperrors.UpstreamUnavailable
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "vectordb", target.Upstream)
	assert.ErrorIs(t, err, failure)
}

func TestBreaker_TripsOpenAfterConsecutiveFailures(t *testing.T) {
	b := New("llm")
	failure := errors.New("timeout")

	for i := 0; i < 5; i++ {
		_ = b.Do(context.Background(), func(ctx context.Context) error { return failure })
	}

	err := b.Do(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	var target *apperrors.UpstreamUnavailable
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "open", b.State())
}
