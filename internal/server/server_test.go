// Copyright (c) 2025 Northbound System
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/codewatch/internal/dispatcher"
	"github.com/northbound/codewatch/internal/events"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/queue"
	"github.com/northbound/codewatch/internal/ratelimit"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
)

type fakeHeadResolver struct{ sha string }

func (f *fakeHeadResolver) ResolveHead(ctx context.Context, remoteURL, branch string) (string, error) {
	return f.sha, nil
}

type memQueue struct{ jobs []queue.Job }

func (q *memQueue) Enqueue(ctx context.Context, job queue.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context) (queue.Job, error) {
	return queue.Job{}, context.Canceled
}

func newTestServer(t *testing.T) (*Server, *store.Store, *events.Bus) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus()
	state := statesvc.New(st, bus)
	disp := dispatcher.New(st, state, &fakeHeadResolver{sha: "resolved-sha"}, &memQueue{}, 2*time.Minute)

	srv := New(st, state, disp, bus, ratelimit.NoopLimiter{}, nil, nil)
	return srv, st, bus
}

func TestHandleCreateAnalysis_HappyPath(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	body := `{"repository_id":"https://example.com/repo.git","commit_sha":"sha-1","trigger_type":"manual"}`
	req := httptest.NewRequest(http.MethodPost, "/analyses", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp createAnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, model.StatusPending, resp.Status)
}

func TestHandleCreateAnalysis_MissingRequiredField(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/analyses", bytes.NewBufferString(`{"trigger_type":"manual"}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleGetAnalysis_NotFoundIsUniform404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/analyses/does-not-exist", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not found", resp.Error)
}

func TestHandleGetAnalysis_HappyPath(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	id, err := srv.dispatcher.Trigger(context.Background(), "https://example.com/repo.git", "sha-1", "main", model.TriggerManual, "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/analyses/"+id, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var detail analysisDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, id, detail.ID)
	assert.Equal(t, "https://example.com/repo.git", detail.RepositoryID)
}

func TestHandleFullStatus_SnakeCaseFields(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	id, err := srv.dispatcher.Trigger(context.Background(), "https://example.com/repo.git", "sha-1", "main", model.TriggerManual, "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/analyses/"+id+"/full-status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "static_progress")
	assert.Contains(t, raw, "embeddings_status")
	assert.Contains(t, raw, "overall_stage")
	assert.Contains(t, raw, "is_complete")
}

func TestHandleEvents_StreamsPublishedEvent(t *testing.T) {
	srv, _, bus := newTestServer(t)
	handler := srv.Handler()

	id, err := srv.dispatcher.Trigger(context.Background(), "https://example.com/repo.git", "sha-1", "main", model.TriggerManual, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/analyses/"+id+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, req)
		close(done)
	}()

	// Give the handler time to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	bus.Publish(events.Event{AnalysisID: id, Kind: events.KindProgress, Track: model.TrackEmbeddings, Progress: 50})

	<-done
	assert.Contains(t, rec.Body.String(), "data: ")
	assert.Contains(t, rec.Body.String(), id)
}

func TestHandleIssues_NotFoundAnalysisIsUniform404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/analyses/does-not-exist/issues", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
