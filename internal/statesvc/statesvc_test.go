package statesvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/northbound/codewatch/internal/apperrors"
	"github.com/northbound/codewatch/internal/events"
	"github.com/northbound/codewatch/internal/metrics"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store, *model.Analysis) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus()
	svc := New(st, bus)

	a, created, err := st.TriggerOrReuse(context.Background(), "repo-1", "abc123", "main", model.TriggerManual, "user-1", 2*time.Minute)
	require.NoError(t, err)
	require.True(t, created)
	return svc, st, a
}

func TestTransition_StaticHappyPath(t *testing.T) {
	svc, _, a := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackStatic, "running", ""))
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackStatic, "completed", ""))

	full, err := svc.FullStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, full.Status)
	assert.Equal(t, 100, full.StaticProgress)
}

func TestTransition_RejectsIllegalJump(t *testing.T) {
	svc, _, a := newTestService(t)
	ctx := context.Background()

	err := svc.Transition(ctx, a.ID, model.TrackStatic, "completed", "")
	require.Error(t, err)
	var target *apperrors.InvalidStateTransition
	assert.ErrorAs(t, err, &target)
}

func TestTransition_EmbeddingsCompletionChainsSemanticCache(t *testing.T) {
	svc, _, a := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackEmbeddings, "pending", ""))
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackEmbeddings, "running", ""))
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackEmbeddings, "completed", ""))

	full, err := svc.FullStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SemanticCachePending, full.SemanticCacheStatus)
}

func TestUpdateProgress_RejectsOutOfRange(t *testing.T) {
	svc, _, a := newTestService(t)
	ctx := context.Background()

	err := svc.UpdateProgress(ctx, a.ID, model.TrackStatic, 101)
	require.Error(t, err)
	var target *apperrors.InvalidProgressValue
	assert.ErrorAs(t, err, &target)
}

func TestUpdateProgress_RejectsRegression(t *testing.T) {
	svc, _, a := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpdateProgress(ctx, a.ID, model.TrackStatic, 50))
	err := svc.UpdateProgress(ctx, a.ID, model.TrackStatic, 20)
	require.Error(t, err)
	var target *apperrors.InvalidProgressValue
	assert.ErrorAs(t, err, &target)
}

func TestOverallStage_FailedDominates(t *testing.T) {
	svc, _, a := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackStatic, "running", ""))
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackStatic, "failed", "clone timed out"))

	full, err := svc.FullStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OverallFailed, full.OverallStage)
	assert.Equal(t, "clone timed out", full.Errors[model.TrackStatic])
}

func TestTriggerOrReuse_SecondCallReturnsInFlightError(t *testing.T) {
	_, st, a := newTestService(t)
	ctx := context.Background()

	_, created, err := st.TriggerOrReuse(ctx, a.RepositoryID, a.CommitSHA, a.Branch, model.TriggerManual, "user-2", 2*time.Minute)
	require.False(t, created)
	var target *apperrors.AnalysisInFlight
	assert.ErrorAs(t, err, &target)
}

func TestTransition_RecordsMetricsWhenConfigured(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	pm, err := metrics.NewPipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	svc := NewWithMetrics(st, events.NewBus(), pm)
	ctx := context.Background()

	a, _, err := st.TriggerOrReuse(ctx, "repo-metrics", "sha-1", "main", model.TriggerManual, "user-1", 2*time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackStatic, "running", ""))
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackStatic, "completed", ""))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "codewatch.track.duration.seconds" {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a track duration sample after a running->completed transition")
}
