// Copyright (c) 2025 Northbound System
package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/codewatch/internal/callgraph"
	"github.com/northbound/codewatch/internal/events"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
	"github.com/northbound/codewatch/internal/vcs"
	"github.com/northbound/codewatch/internal/vectordb"
)

type fakeCloner struct {
	dir string
}

func (f fakeCloner) Clone(ctx context.Context, remoteURL, commitSHA string) (string, func(), error) {
	return f.dir, func() {}, nil
}

type fakeChurnAnalyzer struct {
	byWindow map[int][]vcs.FileChurn
}

func (f fakeChurnAnalyzer) Churn(ctx context.Context, repoDir string, windowDays int) ([]vcs.FileChurn, error) {
	return f.byWindow[windowDays], nil
}

type fakeCallgraphAnalyzer struct {
	verdicts []callgraph.Reachability
}

func (f fakeCallgraphAnalyzer) Analyze(ctx context.Context, repoDir string) ([]callgraph.Reachability, error) {
	return f.verdicts, nil
}

func seedAnalysisPendingSemanticCache(t *testing.T, st *store.Store, svc *statesvc.Service, repositoryID, commitSHA string) *model.Analysis {
	t.Helper()
	ctx := context.Background()
	a, created, err := st.TriggerOrReuse(ctx, repositoryID, commitSHA, "main", model.TriggerManual, "user-1", 2*time.Minute)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackEmbeddings, "pending", ""))
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackEmbeddings, "running", ""))
	require.NoError(t, svc.Transition(ctx, a.ID, model.TrackEmbeddings, "completed", ""))
	return a
}

func seedPoint(t *testing.T, idx *vectordb.InMemoryIndex, id, repositoryID, commitSHA, filePath, name string, vector []float32) {
	t.Helper()
	require.NoError(t, idx.Upsert(context.Background(), id, vector, model.VectorIndexPayload{
		SchemaVersion: model.CurrentSchemaVersion,
		RepositoryID:  repositoryID,
		CommitSHA:     commitSHA,
		FilePath:      filePath,
		Language:      "go",
		ChunkType:     model.ChunkFunction,
		Name:          name,
		LineStart:     1,
		LineEnd:       20,
		LineCount:     20,
	}))
}

func TestAnalyzer_Run_HappyPathCompletesAndPersistsFindings(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := statesvc.New(st, events.NewBus())

	repositoryID, commitSHA := "https://example.com/acme/widgets.git", "sha-1"
	a := seedAnalysisPendingSemanticCache(t, st, svc, repositoryID, commitSHA)

	idx := vectordb.NewInMemoryIndex()
	seedPoint(t, idx, "p1", repositoryID, commitSHA, "internal/services/billing.go", "computeRefund", []float32{0, 1, 0})
	seedPoint(t, idx, "p2", repositoryID, commitSHA, "internal/api/handler.go", "ServeHTTP", []float32{1, 0, 0})
	seedPoint(t, idx, "p3", repositoryID, commitSHA, "internal/api/handler.go", "ServeHTTP2", []float32{0.99, 0.01, 0})
	seedPoint(t, idx, "p4", repositoryID, commitSHA, "internal/api/handler.go", "ServeHTTP3", []float32{0.98, 0.02, 0})
	seedPoint(t, idx, "p5", repositoryID, commitSHA, "internal/api/handler.go", "ServeHTTP4", []float32{0.97, 0.01, 0.01})

	churn := fakeChurnAnalyzer{byWindow: map[int][]vcs.FileChurn{
		churnWindowDays: {{Path: "internal/api/handler.go", ChangesInWindow: 20, Authors: []vcs.AuthorStat{{Author: "a"}, {Author: "b"}}}},
		ageLookbackDays: {{Path: "internal/services/billing.go", ChangesInWindow: 1, LastModifiedAt: time.Now().Add(-400 * 24 * time.Hour)}},
	}}
	cg := fakeCallgraphAnalyzer{verdicts: []callgraph.Reachability{
		{Symbol: callgraph.Symbol{FilePath: "internal/services/billing.go", Name: "computeRefund"}, Reachable: false, Confidence: 1.0},
	}}
	client := fakeLLMClient{response: "[]"}

	analyzer := New(st, svc, idx, fakeCloner{dir: "/tmp/repo"}, churn, UnknownCoverageAnalyzer{}, cg, client)

	require.NoError(t, analyzer.Run(ctx, a.ID, repositoryID, commitSHA))

	updated, err := st.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SemanticCacheCompleted, updated.SemanticCacheStatus)
	assert.Equal(t, 100, updated.SemanticCacheProgress)

	dead, err := st.ListDeadCodeByAnalysis(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "computeRefund", dead[0].FunctionName)

	hot, err := st.ListFileChurnByAnalysis(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, hot, 1)
	assert.Equal(t, "internal/api/handler.go", hot[0].FilePath)

	count, err := idx.GetPointCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestAnalyzer_Run_TransitionsToFailedOnCloneError(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := statesvc.New(st, events.NewBus())

	repositoryID, commitSHA := "https://example.com/acme/widgets.git", "sha-1"
	a := seedAnalysisPendingSemanticCache(t, st, svc, repositoryID, commitSHA)

	idx := vectordb.NewInMemoryIndex()
	analyzer := New(st, svc, idx, failingCloner{}, fakeChurnAnalyzer{}, UnknownCoverageAnalyzer{}, nil, nil)

	err = analyzer.Run(ctx, a.ID, repositoryID, commitSHA)
	require.Error(t, err)

	updated, getErr := st.GetAnalysis(ctx, a.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.SemanticCacheFailed, updated.SemanticCacheStatus)
	assert.NotEmpty(t, updated.SemanticCacheError)
}

type failingCloner struct{}

func (failingCloner) Clone(ctx context.Context, remoteURL, commitSHA string) (string, func(), error) {
	return "", nil, assertErr{"clone failed"}
}

func TestAnalyzer_Run_SkipsInsightsWhenNoClientConfigured(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := statesvc.New(st, events.NewBus())

	repositoryID, commitSHA := "https://example.com/acme/widgets.git", "sha-2"
	a := seedAnalysisPendingSemanticCache(t, st, svc, repositoryID, commitSHA)

	idx := vectordb.NewInMemoryIndex()
	seedPoint(t, idx, "p1", repositoryID, commitSHA, "internal/api/handler.go", "ServeHTTP", []float32{1, 0, 0})

	analyzer := New(st, svc, idx, fakeCloner{dir: "/tmp/repo"}, fakeChurnAnalyzer{}, UnknownCoverageAnalyzer{}, nil, nil)
	require.NoError(t, analyzer.Run(ctx, a.ID, repositoryID, commitSHA))

	updated, err := st.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SemanticCacheCompleted, updated.SemanticCacheStatus)
	assert.Empty(t, updated.SemanticCache.Insights)
}
