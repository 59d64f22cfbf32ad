// Copyright (c) 2025 Northbound System
package aiscan

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/codewatch/internal/llm"
)

type stubModel struct {
	id       string
	response string
	err      error
}

func (s stubModel) ModelID() string { return s.id }
func (s stubModel) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Content: s.response, Model: s.id}, nil
}

func TestBroadScan_AggregatesCandidatesAcrossModels(t *testing.T) {
	a := stubModel{id: "model-a", response: `[{"dimension":"security","severity":"high","title":"SQL injection","file":"db.go","confidence":0.9,"evidence":"string concat"}]`}
	b := stubModel{id: "model-b", response: `[{"dimension":"performance","severity":"low","title":"N+1 query","file":"api.go","confidence":0.6,"evidence":"loop query"}]`}

	candidates := BroadScan(context.Background(), []llm.Client{a, b}, "digest", nil)
	require.Len(t, candidates, 2)

	byModel := map[string]bool{}
	for _, c := range candidates {
		byModel[c.ModelID] = true
	}
	assert.True(t, byModel["model-a"])
	assert.True(t, byModel["model-b"])
}

func TestBroadScan_MalformedJSONContributesNothingButScanContinues(t *testing.T) {
	broken := stubModel{id: "broken", response: "not json"}
	ok := stubModel{id: "ok", response: `[{"dimension":"correctness","severity":"medium","title":"off by one","file":"x.go","confidence":0.5}]`}

	candidates := BroadScan(context.Background(), []llm.Client{broken, ok}, "digest", nil)
	require.Len(t, candidates, 1)
	assert.Equal(t, "ok", candidates[0].ModelID)
}

func TestBroadScan_ErroringModelContributesNothing(t *testing.T) {
	failing := stubModel{id: "failing", err: assertErr{"upstream down"}}

	candidates := BroadScan(context.Background(), []llm.Client{failing}, "digest", nil)
	assert.Empty(t, candidates)
}

func TestBroadScan_ReportsProgressPerModel(t *testing.T) {
	a := stubModel{id: "model-a", response: `[{"title":"x","file":"a.go","confidence":0.5}]`}
	b := stubModel{id: "model-b", response: `[]`}

	var mu sync.Mutex
	seen := map[string]int{}
	BroadScan(context.Background(), []llm.Client{a, b}, "digest", func(p ModelProgress) {
		mu.Lock()
		seen[p.ModelID] = p.CandidateCount
		mu.Unlock()
	})

	assert.Equal(t, 1, seen["model-a"])
	assert.Equal(t, 0, seen["model-b"])
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
