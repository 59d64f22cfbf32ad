// Copyright (c) 2025 Northbound System
package cluster

import (
	"path"
	"strings"
)

// Layer is the architectural bucket a file's directory/filename places it
// in (spec.md §4.4 step 3).
type Layer string

const (
	LayerModels   Layer = "models"
	LayerServices Layer = "services"
	LayerAPI      Layer = "api"
	LayerTests    Layer = "tests"
	LayerUtils    Layer = "utils"
	LayerWorkers  Layer = "workers"
	LayerUnknown  Layer = "unknown"
)

var layerKeywords = []struct {
	layer    Layer
	keywords []string
}{
	{LayerTests, []string{"test", "tests", "spec", "__tests__", "fixtures"}},
	{LayerModels, []string{"model", "models", "schema", "entity", "entities"}},
	{LayerAPI, []string{"api", "handler", "handlers", "controller", "controllers", "router", "routes", "server"}},
	{LayerWorkers, []string{"worker", "workers", "job", "jobs", "queue", "consumer", "dispatcher"}},
	{LayerUtils, []string{"util", "utils", "helper", "helpers", "common", "shared"}},
	{LayerServices, []string{"service", "services", "usecase", "usecases", "domain"}},
}

// ArchitecturalContext is the per-file classification spec.md §4.4 step 3
// computes ahead of dead-code filtering.
type ArchitecturalContext struct {
	Directory string
	Filename  string
	Layer     Layer
	IsTest    bool
}

// ClassifyFile derives a file's architectural context from its path alone,
// checking directory segments and the filename for conventional layer
// keywords. Go's own `_test.go` suffix is checked first since it is an
// unambiguous, language-level test marker.
func ClassifyFile(filePath string) ArchitecturalContext {
	ctx := ArchitecturalContext{
		Directory: path.Dir(filePath),
		Filename:  path.Base(filePath),
		Layer:     LayerUnknown,
	}

	if strings.HasSuffix(ctx.Filename, "_test.go") {
		ctx.IsTest = true
		ctx.Layer = LayerTests
		return ctx
	}

	haystack := strings.ToLower(filePath)
	for _, candidate := range layerKeywords {
		for _, kw := range candidate.keywords {
			if containsSegment(haystack, kw) {
				ctx.Layer = candidate.layer
				if candidate.layer == LayerTests {
					ctx.IsTest = true
				}
				return ctx
			}
		}
	}

	return ctx
}

// containsSegment reports whether kw appears as a whole path segment or
// filename-stem token, not merely as a substring, so "controller.go"
// matches "controller" but "parallelizer.go" does not match "api".
func containsSegment(haystack, kw string) bool {
	for _, sep := range []string{"/", "_", "-", "."} {
		haystack = strings.ReplaceAll(haystack, sep, " ")
	}
	for _, token := range strings.Fields(haystack) {
		if token == kw {
			return true
		}
	}
	return false
}

// IsExpectedOutlier reports whether a point's file context should be
// excluded from the dead-code set even if clustering marked it an
// outlier: test files and generic utility-named files produce expected
// one-off embeddings that are not evidence of unreachable code.
func IsExpectedOutlier(ctx ArchitecturalContext) bool {
	return ctx.IsTest || ctx.Layer == LayerUtils
}
