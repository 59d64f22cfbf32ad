// Copyright (c) 2025 Northbound System
package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFile_DetectsGoTestSuffix(t *testing.T) {
	ctx := ClassifyFile("internal/widget/widget_test.go")
	assert.True(t, ctx.IsTest)
	assert.Equal(t, LayerTests, ctx.Layer)
}

func TestClassifyFile_DetectsLayerFromDirectory(t *testing.T) {
	cases := map[string]Layer{
		"internal/handlers/analyses_handler.go": LayerAPI,
		"internal/models/analysis.go":           LayerModels,
		"internal/worker/pool.go":               LayerWorkers,
		"internal/utils/strings.go":             LayerUtils,
		"internal/services/billing.go":          LayerServices,
	}
	for filePath, want := range cases {
		assert.Equal(t, want, ClassifyFile(filePath).Layer, filePath)
	}
}

func TestClassifyFile_DefaultsToUnknown(t *testing.T) {
	ctx := ClassifyFile("main.go")
	assert.Equal(t, LayerUnknown, ctx.Layer)
	assert.False(t, ctx.IsTest)
}

func TestIsExpectedOutlier_TrueForTestsAndUtils(t *testing.T) {
	assert.True(t, IsExpectedOutlier(ArchitecturalContext{IsTest: true}))
	assert.True(t, IsExpectedOutlier(ArchitecturalContext{Layer: LayerUtils}))
	assert.False(t, IsExpectedOutlier(ArchitecturalContext{Layer: LayerServices}))
}
