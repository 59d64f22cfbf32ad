package objectstorage

import (
	"context"
	"fmt"
	"sync"

	"github.com/northbound/codewatch/internal/apperrors"
)

// MockStore is an in-memory Store for tests and local development without
// an Azurite/Azure endpoint, following the-hive's MockEmbedder convention
// of a deterministic stand-in behind the same interface as the real
// adapter.
type MockStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMockStore constructs an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string][]byte)}
}

func (m *MockStore) Put(ctx context.Context, key string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(content))
	copy(cp, content)
	m.data[key] = cp
	return nil
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, apperrors.ErrContentCacheNotFound)
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MockStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}
