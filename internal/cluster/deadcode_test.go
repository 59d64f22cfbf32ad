// Copyright (c) 2025 Northbound System
package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/northbound/codewatch/internal/callgraph"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/vectordb"
)

func outlierPoint(id, filePath, name string, start, end int) vectordb.Match {
	return vectordb.Match{
		ID: id,
		Payload: model.VectorIndexPayload{
			FilePath:  filePath,
			Name:      name,
			LineStart: start,
			LineEnd:   end,
		},
	}
}

func TestDetectDeadCode_ReportsUnreachableSymbol(t *testing.T) {
	outliers := []vectordb.Match{outlierPoint("p1", "internal/services/billing.go", "computeRefund", 10, 30)}
	verdicts := []callgraph.Reachability{
		{Symbol: callgraph.Symbol{FilePath: "internal/services/billing.go", Name: "computeRefund"}, Reachable: false, Confidence: 1.0},
	}

	findings := DetectDeadCode("a1", "repo-1", outliers, verdicts, map[string]float64{"p1": 0.1}, map[string]int{})

	assert.Len(t, findings, 1)
	assert.Equal(t, "computeRefund", findings[0].FunctionName)
	assert.Equal(t, 1.0, findings[0].Confidence)
	assert.Equal(t, 21, findings[0].LineCount)
}

func TestDetectDeadCode_SkipsReachableSymbol(t *testing.T) {
	outliers := []vectordb.Match{outlierPoint("p1", "internal/services/billing.go", "computeRefund", 10, 30)}
	verdicts := []callgraph.Reachability{
		{Symbol: callgraph.Symbol{FilePath: "internal/services/billing.go", Name: "computeRefund"}, Reachable: true, Confidence: 1.0},
	}

	findings := DetectDeadCode("a1", "repo-1", outliers, verdicts, nil, nil)
	assert.Empty(t, findings)
}

func TestDetectDeadCode_SkipsExpectedOutliers(t *testing.T) {
	outliers := []vectordb.Match{outlierPoint("p1", "internal/services/billing_test.go", "TestRefund", 10, 30)}

	findings := DetectDeadCode("a1", "repo-1", outliers, nil, nil, nil)
	assert.Empty(t, findings)
}

func TestDetectDeadCode_UnknownSymbolUsesHeuristicConfidence(t *testing.T) {
	outliers := []vectordb.Match{outlierPoint("p1", "internal/services/billing.go", "legacyHelper", 1, 5)}

	findings := DetectDeadCode("a1", "repo-1", outliers, nil, nil, nil)

	assert.Len(t, findings, 1)
	assert.Equal(t, heuristicOnlyConfidence, findings[0].Confidence)
}
