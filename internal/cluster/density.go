// Copyright (c) 2025 Northbound System
package cluster

import (
	"math"

	"github.com/northbound/codewatch/internal/vectordb"
)

// Default DBSCAN parameters for cosine-distance clustering over code-chunk
// embeddings. No literal values are given in the source; these were chosen
// so that near-duplicate chunks (cosine similarity above ~0.82) cluster
// together while requiring at least 3 points within eps (the point itself
// included) to avoid treating chance pairs as a cluster.
const (
	DefaultEpsilon   = 0.18
	DefaultMinPoints = 3
)

// DensityCluster runs a density-reachability clustering pass (DBSCAN)
// over points using cosine distance, the teacher-absent stand-in for
// HDBSCAN spec.md §4.4 step 2 names: a point with at least minPoints
// points within eps (itself included) is a core point and starts or
// extends a cluster; a point that is neither core nor within eps of a
// core point is assigned cluster id -1 (outlier), matching spec.md's
// cluster_id convention. Points require
// their Vector field populated (as vectordb.Index.Scroll returns); points
// without one are treated as outliers.
func DensityCluster(points []vectordb.Match, eps float64, minPoints int) map[string]int {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}

	ids := make([]string, 0, len(points))
	vecByID := make(map[string][]float32, len(points))
	for _, p := range points {
		if len(p.Vector) == 0 {
			continue
		}
		ids = append(ids, p.ID)
		vecByID[p.ID] = p.Vector
	}

	clusterOf := make(map[string]int, len(ids))
	visited := make(map[string]bool, len(ids))
	nextClusterID := 0

	neighborsOf := func(id string) []string {
		var out []string
		for _, other := range ids {
			if other == id {
				continue
			}
			if cosineDistance(vecByID[id], vecByID[other]) <= eps {
				out = append(out, other)
			}
		}
		return out
	}

	for _, id := range ids {
		if visited[id] {
			continue
		}
		visited[id] = true

		neighbors := neighborsOf(id)
		if len(neighbors)+1 < minPoints {
			clusterOf[id] = -1
			continue
		}

		clusterID := nextClusterID
		nextClusterID++
		clusterOf[id] = clusterID

		queue := append([]string(nil), neighbors...)
		for len(queue) > 0 {
			candidate := queue[0]
			queue = queue[1:]

			if !visited[candidate] {
				visited[candidate] = true
				candidateNeighbors := neighborsOf(candidate)
				if len(candidateNeighbors)+1 >= minPoints {
					queue = append(queue, candidateNeighbors...)
				}
			}

			if existing, assigned := clusterOf[candidate]; !assigned || existing == -1 {
				clusterOf[candidate] = clusterID
			}
		}
	}

	// ids with no vector never entered the loop; default them to outliers.
	for _, p := range points {
		if _, ok := clusterOf[p.ID]; !ok {
			clusterOf[p.ID] = -1
		}
	}

	return clusterOf
}

// Centrality approximates how embedded a point is in its neighborhood,
// the signal ImpactScore uses in place of true call-graph centrality
// (spec.md §4.4 step 6 names "centrality" without defining its source):
// the fraction of all other points within eps, capped at 1. An isolated
// outlier scores near 0; a point in a dense cluster scores near 1.
func Centrality(points []vectordb.Match, eps float64) map[string]float64 {
	if eps <= 0 {
		eps = DefaultEpsilon
	}

	ids := make([]string, 0, len(points))
	vecByID := make(map[string][]float32, len(points))
	for _, p := range points {
		if len(p.Vector) == 0 {
			continue
		}
		ids = append(ids, p.ID)
		vecByID[p.ID] = p.Vector
	}

	out := make(map[string]float64, len(points))
	denominator := float64(len(ids) - 1)

	for _, id := range ids {
		if denominator <= 0 {
			out[id] = 0
			continue
		}
		count := 0
		for _, other := range ids {
			if other == id {
				continue
			}
			if cosineDistance(vecByID[id], vecByID[other]) <= eps {
				count++
			}
		}
		out[id] = clamp01(float64(count) / denominator)
	}

	for _, p := range points {
		if _, ok := out[p.ID]; !ok {
			out[p.ID] = 0
		}
	}

	return out
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - similarity
}
