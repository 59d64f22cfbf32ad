// Copyright (c) 2025 Northbound System
package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/northbound/codewatch/internal/vectordb"
)

func vecMatch(id string, vec []float32) vectordb.Match {
	return vectordb.Match{ID: id, Vector: vec}
}

func TestDensityCluster_GroupsTightPointsTogether(t *testing.T) {
	points := []vectordb.Match{
		vecMatch("a", []float32{1, 0, 0}),
		vecMatch("b", []float32{0.99, 0.01, 0}),
		vecMatch("c", []float32{0.98, 0.02, 0}),
		vecMatch("d", []float32{0.97, 0.01, 0.01}),
	}

	clusters := DensityCluster(points, DefaultEpsilon, 3)
	assert.NotEqual(t, -1, clusters["a"])
	assert.Equal(t, clusters["a"], clusters["b"])
	assert.Equal(t, clusters["a"], clusters["c"])
	assert.Equal(t, clusters["a"], clusters["d"])
}

func TestDensityCluster_IsolatedPointIsOutlier(t *testing.T) {
	points := []vectordb.Match{
		vecMatch("a", []float32{1, 0, 0}),
		vecMatch("b", []float32{0.99, 0.01, 0}),
		vecMatch("c", []float32{0.98, 0.02, 0}),
		vecMatch("lonely", []float32{0, 1, 0}),
	}

	clusters := DensityCluster(points, DefaultEpsilon, 3)
	assert.Equal(t, -1, clusters["lonely"])
	assert.NotEqual(t, -1, clusters["a"])
}

func TestDensityCluster_PointsWithoutVectorAreOutliers(t *testing.T) {
	points := []vectordb.Match{
		vecMatch("a", []float32{1, 0, 0}),
		vecMatch("novec", nil),
	}

	clusters := DensityCluster(points, DefaultEpsilon, 3)
	assert.Equal(t, -1, clusters["novec"])
}

func TestDensityCluster_EmptyInputReturnsEmptyMap(t *testing.T) {
	clusters := DensityCluster(nil, DefaultEpsilon, DefaultMinPoints)
	assert.Empty(t, clusters)
}
