// Copyright (c) 2025 Northbound System
package cluster

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/codewatch/internal/llm"
	"github.com/northbound/codewatch/internal/model"
)

func TestBuildSummary_PenalizesDeadCodeAndHotSpots(t *testing.T) {
	clean := BuildSummary(nil, nil, 100)
	assert.Equal(t, 100, clean.HealthScore)
	assert.Empty(t, clean.MainConcerns)

	degraded := BuildSummary(
		[]model.DeadCodeFinding{{}, {}},
		[]model.FileChurnFinding{{}},
		100,
	)
	assert.Less(t, degraded.HealthScore, clean.HealthScore)
	assert.Len(t, degraded.MainConcerns, 2)
	assert.Equal(t, 2, degraded.Counts["dead_code_findings"])
	assert.Equal(t, 1, degraded.Counts["hot_spot_findings"])
}

func TestBuildSummary_NeverGoesBelowZero(t *testing.T) {
	var deadCode []model.DeadCodeFinding
	for i := 0; i < 50; i++ {
		deadCode = append(deadCode, model.DeadCodeFinding{})
	}
	var hotSpots []model.FileChurnFinding
	for i := 0; i < 50; i++ {
		hotSpots = append(hotSpots, model.FileChurnFinding{})
	}
	summary := BuildSummary(deadCode, hotSpots, 10)
	assert.GreaterOrEqual(t, summary.HealthScore, 0)
}

type fakeLLMClient struct {
	response string
	err      error
}

func (f fakeLLMClient) ModelID() string { return "fake-model" }
func (f fakeLLMClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.response, Model: "fake-model"}, nil
}

func TestGenerateInsights_ParsesModelResponse(t *testing.T) {
	payload := []map[string]any{
		{
			"insight_type":     "dead_code",
			"title":            "Unused refund path",
			"description":      "computeRefund is never called",
			"priority":         "high",
			"affected_files":   []string{"internal/services/billing.go"},
			"evidence":         "no call-graph path",
			"suggested_action": "remove",
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	client := fakeLLMClient{response: string(raw)}
	insights, err := GenerateInsights(context.Background(), client, "a1", model.ArchitectureSummary{HealthScore: 80}, nil, nil)
	require.NoError(t, err)

	require.Len(t, insights, 1)
	assert.Equal(t, model.InsightDeadCode, insights[0].InsightType)
	assert.Equal(t, model.PriorityHigh, insights[0].Priority)
	assert.Equal(t, "a1", insights[0].AnalysisID)
}

func TestGenerateInsights_PropagatesClientError(t *testing.T) {
	client := fakeLLMClient{err: assertErr{"upstream down"}}
	_, err := GenerateInsights(context.Background(), client, "a1", model.ArchitectureSummary{}, nil, nil)
	assert.Error(t, err)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
