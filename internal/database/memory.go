package database

import (
	"context"
	"sync"
)

// MemoryDB is an in-process Store, used in tests and when no database path is configured
type MemoryDB struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{values: make(map[string][]byte)}
}

func (m *MemoryDB) Load(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	// Return copy to prevent external modifications
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryDB) Save(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

func (m *MemoryDB) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

func (m *MemoryDB) Close() error {
	return nil
}
