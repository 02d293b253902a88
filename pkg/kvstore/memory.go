package kvstore

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) SetMany(_ context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		m.items[e.Key] = append([]byte(nil), e.Value...)
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
