// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/northbound/codewatch/internal/model"
)

// InMemoryIndex is a real (not no-op) in-process implementation of Index,
// used by tests and local development without a Qdrant instance. Unlike
// the teacher's MockVectorDB, which discarded every write, this one
// performs actual cosine-similarity search over stored vectors, since the
// cluster analyzer's tests need realistic nearest-neighbor behavior.
type InMemoryIndex struct {
	mu     sync.RWMutex
	points map[string]indexedPoint
}

type indexedPoint struct {
	vector  []float32
	payload model.VectorIndexPayload
}

// NewInMemoryIndex constructs an empty InMemoryIndex.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{points: make(map[string]indexedPoint)}
}

func (m *InMemoryIndex) Upsert(ctx context.Context, id string, vector []float32, payload model.VectorIndexPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[id] = indexedPoint{vector: append([]float32(nil), vector...), payload: payload}
	return nil
}

func (m *InMemoryIndex) Search(ctx context.Context, queryVector []float32, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for id, p := range m.points {
		if !matchesFilter(p.payload, filter) {
			continue
		}
		matches = append(matches, Match{ID: id, Score: cosineSimilarity(queryVector, p.vector), Payload: p.payload})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func matchesFilter(p model.VectorIndexPayload, f Filter) bool {
	if f.RepositoryID != "" && p.RepositoryID != f.RepositoryID {
		return false
	}
	if f.CommitSHA != "" && p.CommitSHA != f.CommitSHA {
		return false
	}
	if f.ChunkType != "" && p.ChunkType != f.ChunkType {
		return false
	}
	if len(f.ChunkTypeIn) > 0 {
		found := false
		for _, ct := range f.ChunkTypeIn {
			if p.ChunkType == ct {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func (m *InMemoryIndex) Scroll(ctx context.Context, filter Filter, limit int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.points))
	for id := range m.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matches []Match
	for _, id := range ids {
		p := m.points[id]
		if !matchesFilter(p.payload, filter) {
			continue
		}
		matches = append(matches, Match{ID: id, Payload: p.payload, Vector: p.vector})
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func (m *InMemoryIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.points, id)
	return nil
}

func (m *InMemoryIndex) GetPointCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

func (m *InMemoryIndex) UpdateClusterID(ctx context.Context, id string, clusterID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return nil
	}
	p.payload.ClusterID = clusterID
	m.points[id] = p
	return nil
}

var _ Index = (*InMemoryIndex)(nil)
var _ Index = (*QdrantIndex)(nil)
