// Copyright (c) 2025 Northbound System
package aiscan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/northbound/codewatch/internal/events"
	"github.com/northbound/codewatch/internal/llm"
	"github.com/northbound/codewatch/internal/metrics"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
)

type fakeCloner struct{ dir string }

func (f fakeCloner) Clone(ctx context.Context, remoteURL, commitSHA string) (string, func(), error) {
	return f.dir, func() {}, nil
}

type failingCloner struct{}

func (failingCloner) Clone(ctx context.Context, remoteURL, commitSHA string) (string, func(), error) {
	return "", nil, assertErr{"clone failed"}
}

func seedAnalysis(t *testing.T, st *store.Store, repositoryID, commitSHA string) *model.Analysis {
	t.Helper()
	a, created, err := st.TriggerOrReuse(context.Background(), repositoryID, commitSHA, "main", model.TriggerManual, "user-1", 2*time.Minute)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, model.AIScanNone, a.AIScanStatus)
	require.NoError(t, statesvc.New(st, events.NewBus()).Transition(context.Background(), a.ID, model.TrackAIScan, "pending", ""))
	return a
}

func TestWorker_Run_HappyPathCompletesAndPersistsIssues(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := statesvc.New(st, events.NewBus())

	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "billing.go"), []byte("func computeRefund() {}\n"), 0o644))

	repositoryID, commitSHA := "https://example.com/acme/widgets.git", "sha-1"
	a := seedAnalysis(t, st, repositoryID, commitSHA)

	broadScanClient := stubModel{id: "model-a", response: `[{"dimension":"maintainability","severity":"high","title":"Unused refund path","file":"billing.go","confidence":0.8,"evidence":"no callers found"}]`}
	investigatorClient := &scriptedClient{responses: []string{
		`{"action":"conclude","verdict":"confirmed","explanation":"confirmed unreachable"}`,
	}}

	worker := New(st, svc, fakeCloner{dir: repo}, []llm.Client{broadScanClient}, NewInvestigator(investigatorClient))
	require.NoError(t, worker.Run(ctx, a.ID, repositoryID, commitSHA))

	updated, err := st.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AIScanCompleted, updated.AIScanStatus)
	assert.Equal(t, 100, updated.AIScanProgress)

	issues, err := st.ListIssuesByAnalysis(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "Unused refund path", issues[0].Title)
	require.NotNil(t, issues[0].Investigation)
	assert.Equal(t, model.VerdictConfirmed, issues[0].Investigation.Verdict)
}

func TestWorker_Run_SkipsInvestigationForLowSeverityIssues(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := statesvc.New(st, events.NewBus())

	repo := t.TempDir()
	repositoryID, commitSHA := "https://example.com/acme/widgets.git", "sha-2"
	a := seedAnalysis(t, st, repositoryID, commitSHA)

	broadScanClient := stubModel{id: "model-a", response: `[{"dimension":"style","severity":"low","title":"Inconsistent naming","file":"a.go","confidence":0.5}]`}

	worker := New(st, svc, fakeCloner{dir: repo}, []llm.Client{broadScanClient}, nil)
	require.NoError(t, worker.Run(ctx, a.ID, repositoryID, commitSHA))

	issues, err := st.ListIssuesByAnalysis(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Nil(t, issues[0].Investigation)
}

func TestWorker_Run_TransitionsToFailedOnCloneError(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := statesvc.New(st, events.NewBus())

	repositoryID, commitSHA := "https://example.com/acme/widgets.git", "sha-3"
	a := seedAnalysis(t, st, repositoryID, commitSHA)

	worker := New(st, svc, failingCloner{}, nil, nil)
	err = worker.Run(ctx, a.ID, repositoryID, commitSHA)
	require.Error(t, err)

	updated, getErr := st.GetAnalysis(ctx, a.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.AIScanFailed, updated.AIScanStatus)
	assert.NotEmpty(t, updated.AIScanError)
}

func TestWorker_Run_RecordsIssueMetricWhenConfigured(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := statesvc.New(st, events.NewBus())

	repo := t.TempDir()
	repositoryID, commitSHA := "https://example.com/acme/widgets.git", "sha-4"
	a := seedAnalysis(t, st, repositoryID, commitSHA)

	broadScanClient := stubModel{id: "model-a", response: `[{"dimension":"style","severity":"low","title":"Inconsistent naming","file":"a.go","confidence":0.5}]`}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	pm, err := metrics.NewPipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	worker := NewWithMetrics(st, svc, fakeCloner{dir: repo}, []llm.Client{broadScanClient}, nil, pm)
	require.NoError(t, worker.Run(ctx, a.ID, repositoryID, commitSHA))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "codewatch.aiscan.issues.total" {
				found = true
			}
		}
	}
	assert.True(t, found, "expected an issue metric sample")
}
