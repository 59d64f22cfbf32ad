// Copyright (c) 2025 Northbound System
package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/codewatch/internal/apperrors"
	"github.com/northbound/codewatch/internal/events"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/queue"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
)

type fakeHeadResolver struct {
	sha string
	err error
}

func (f *fakeHeadResolver) ResolveHead(ctx context.Context, remoteURL, branch string) (string, error) {
	return f.sha, f.err
}

type memQueue struct {
	jobs []queue.Job
}

func (q *memQueue) Enqueue(ctx context.Context, job queue.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context) (queue.Job, error) {
	if len(q.jobs) == 0 {
		return queue.Job{}, context.Canceled
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store, *memQueue) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	state := statesvc.New(st, events.NewBus())
	q := &memQueue{}
	d := New(st, state, &fakeHeadResolver{sha: "resolved-sha"}, q, 2*time.Minute)
	return d, st, q
}

func TestTrigger_HappyPathEnqueuesAllThreeJobs(t *testing.T) {
	d, st, q := newTestDispatcher(t)
	ctx := context.Background()

	id, err := d.Trigger(ctx, "https://example.com/repo.git", "sha-123", "main", model.TriggerWebhook, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Len(t, q.jobs, 3)
	gotTypes := map[string]bool{}
	for _, job := range q.jobs {
		gotTypes[job.Type] = true
		var payload TaskPayload
		require.NoError(t, json.Unmarshal(job.Payload, &payload))
		assert.Equal(t, id, payload.AnalysisID)
		assert.Equal(t, "sha-123", payload.CommitSHA)
	}
	assert.True(t, gotTypes[JobTypeStaticAnalysis])
	assert.True(t, gotTypes[JobTypeEmbeddings])
	assert.True(t, gotTypes[JobTypeAIScan])

	full, err := st.GetAnalysis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.EmbeddingsPending, full.EmbeddingsStatus)
	assert.Equal(t, model.AIScanPending, full.AIScanStatus)
}

func TestTrigger_ResolvesHeadWhenCommitSHAEmpty(t *testing.T) {
	d, _, q := newTestDispatcher(t)
	ctx := context.Background()

	id, err := d.Trigger(ctx, "https://example.com/repo.git", "", "main", model.TriggerWebhook, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var payload TaskPayload
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &payload))
	assert.Equal(t, "resolved-sha", payload.CommitSHA)
}

func TestTrigger_ReturnsAnalysisInFlightOnDuplicate(t *testing.T) {
	d, _, q := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Trigger(ctx, "https://example.com/repo.git", "sha-123", "main", model.TriggerWebhook, "")
	require.NoError(t, err)

	_, err = d.Trigger(ctx, "https://example.com/repo.git", "sha-123", "main", model.TriggerManual, "user-1")
	require.Error(t, err)
	var inFlight *apperrors.AnalysisInFlight
	require.ErrorAs(t, err, &inFlight)

	// no jobs enqueued for the rejected duplicate trigger
	assert.Len(t, q.jobs, 3)
}

func TestTrigger_SupersedesStaleHeartbeatAndEnqueuesFreshJobs(t *testing.T) {
	d, st, q := newTestDispatcher(t)
	ctx := context.Background()

	first, err := d.Trigger(ctx, "https://example.com/repo.git", "sha-123", "main", model.TriggerWebhook, "")
	require.NoError(t, err)
	require.NoError(t, st.UpdateHeartbeat(ctx, first, time.Now().UTC().Add(-10*time.Minute)))

	second, err := d.Trigger(ctx, "https://example.com/repo.git", "sha-123", "main", model.TriggerManual, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	stale, err := st.GetAnalysis(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stale.Status)
	assert.Equal(t, "heartbeat_stale", stale.StaticError)

	assert.Len(t, q.jobs, 6)
}

func TestTrigger_ResolveHeadErrorPropagates(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	state := statesvc.New(st, events.NewBus())
	q := &memQueue{}
	d := New(st, state, &fakeHeadResolver{err: assert.AnError}, q, 2*time.Minute)

	_, err = d.Trigger(context.Background(), "https://example.com/repo.git", "", "main", model.TriggerWebhook, "")
	require.Error(t, err)
	assert.Empty(t, q.jobs)
}
