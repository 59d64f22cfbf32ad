// Copyright (c) 2025 Northbound System
package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/codewatch/internal/contentcache"
	"github.com/northbound/codewatch/internal/embeddings"
	"github.com/northbound/codewatch/internal/events"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/objectstorage"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
	"github.com/northbound/codewatch/internal/vectordb"
)

type fakeCloner struct{ dir string }

func (f fakeCloner) Clone(ctx context.Context, remoteURL, commitSHA string) (string, func(), error) {
	return f.dir, func() {}, nil
}

type fakeIndex struct {
	mu       sync.Mutex
	upserted map[string]model.VectorIndexPayload
}

func newFakeIndex() *fakeIndex { return &fakeIndex{upserted: map[string]model.VectorIndexPayload{}} }

func (f *fakeIndex) Upsert(ctx context.Context, id string, vector []float32, payload model.VectorIndexPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted[id] = payload
	return nil
}
func (f *fakeIndex) Search(ctx context.Context, queryVector []float32, topK int, filter vectordb.Filter) ([]vectordb.Match, error) {
	return nil, nil
}
func (f *fakeIndex) Scroll(ctx context.Context, filter vectordb.Filter, limit int) ([]vectordb.Match, error) {
	return nil, nil
}
func (f *fakeIndex) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeIndex) GetPointCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserted), nil
}
func (f *fakeIndex) UpdateClusterID(ctx context.Context, id string, clusterID int) error { return nil }

func writeRepoFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "internal", "billing"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "internal", "billing", "billing.go"), []byte(`package billing

func ComputeRefund(amount int) int {
	if amount < 0 {
		return 0
	}
	return amount
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Widgets\n\nThis repository computes refunds.\n"), 0o644))
	return dir
}

func TestEmbeddingsWorker_Run_HappyPath(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := statesvc.New(st, events.NewBus())

	repositoryID, commitSHA := "https://example.com/acme/widgets.git", "sha-1"
	a, created, err := st.TriggerOrReuse(ctx, repositoryID, commitSHA, "main", model.TriggerManual, "user-1", 2*time.Minute)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackEmbeddings, "pending", ""))

	dir := writeRepoFixture(t)
	idx := newFakeIndex()
	cache := contentcache.New(st, objectstorage.NewMockStore())

	w := NewEmbeddingsWorker(svc, fakeCloner{dir: dir}, embeddings.NewMockEmbedder(16), idx, cache)
	require.NoError(t, w.Run(ctx, a.ID, repositoryID, commitSHA))

	updated, err := st.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EmbeddingsCompleted, updated.EmbeddingsStatus)
	assert.Equal(t, 100, updated.EmbeddingsProgress)
	assert.Equal(t, model.SemanticCachePending, updated.SemanticCacheStatus)

	count, err := idx.GetPointCount(ctx)
	require.NoError(t, err)
	assert.Greater(t, count, 0)

	var sawFunction bool
	for _, p := range idx.upserted {
		if p.ChunkType == model.ChunkFunction {
			sawFunction = true
			assert.Equal(t, repositoryID, p.RepositoryID)
			assert.Equal(t, commitSHA, p.CommitSHA)
			assert.LessOrEqual(t, len(p.Content), model.MaxContentLength)
		}
	}
	assert.True(t, sawFunction, "expected at least one function chunk to be indexed")

	tree, err := cache.ListTree(ctx, repositoryID, commitSHA)
	require.NoError(t, err)
	assert.Contains(t, tree.FlatPaths, "internal/billing/billing.go")
}

func TestEmbeddingsWorker_Run_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := statesvc.New(st, events.NewBus())

	repositoryID, commitSHA := "https://example.com/acme/widgets.git", "sha-2"
	a, _, err := st.TriggerOrReuse(ctx, repositoryID, commitSHA, "main", model.TriggerManual, "user-1", 2*time.Minute)
	require.NoError(t, err)
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackEmbeddings, "pending", ""))

	dir := writeRepoFixture(t)
	idx := newFakeIndex()
	cache := contentcache.New(st, objectstorage.NewMockStore())
	w := NewEmbeddingsWorker(svc, fakeCloner{dir: dir}, embeddings.NewMockEmbedder(16), idx, cache)

	require.NoError(t, w.Run(ctx, a.ID, repositoryID, commitSHA))
	firstCount, err := idx.GetPointCount(ctx)
	require.NoError(t, err)

	// completed is terminal in the transition table, so the second run
	// starts from track states reset directly in the store.
	require.NoError(t, st.UpdateTrackState(ctx, a.ID, model.TrackEmbeddings, model.TrackState{Status: "pending"}))
	require.NoError(t, st.UpdateTrackState(ctx, a.ID, model.TrackSemanticCache, model.TrackState{Status: "none"}))
	require.NoError(t, w.Run(ctx, a.ID, repositoryID, commitSHA))
	secondCount, err := idx.GetPointCount(ctx)
	require.NoError(t, err)

	assert.Equal(t, firstCount, secondCount, "re-running for the same commit should upsert over the same point ids")
}

type failingCloner struct{}

func (failingCloner) Clone(ctx context.Context, remoteURL, commitSHA string) (string, func(), error) {
	return "", nil, assertErr("clone failed")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestEmbeddingsWorker_Run_TransitionsToFailedOnCloneError(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := statesvc.New(st, events.NewBus())

	repositoryID, commitSHA := "https://example.com/acme/widgets.git", "sha-3"
	a, _, err := st.TriggerOrReuse(ctx, repositoryID, commitSHA, "main", model.TriggerManual, "user-1", 2*time.Minute)
	require.NoError(t, err)
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackEmbeddings, "pending", ""))

	cache := contentcache.New(st, objectstorage.NewMockStore())
	w := NewEmbeddingsWorker(svc, failingCloner{}, embeddings.NewMockEmbedder(16), newFakeIndex(), cache)

	err = w.Run(ctx, a.ID, repositoryID, commitSHA)
	require.Error(t, err)

	updated, getErr := st.GetAnalysis(ctx, a.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.EmbeddingsFailed, updated.EmbeddingsStatus)
	assert.NotEmpty(t, updated.EmbeddingsError)
}
