package httpcache

import (
	"context"
	"sync"
)

// MemoryStorage keeps entries for the life of the process.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]Entry)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = e
	return nil
}
