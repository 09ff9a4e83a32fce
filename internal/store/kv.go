package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when a key has no stored value
var ErrNotFound = errors.New("store: key not found")

// KV is the minimal key-value contract the store is written against.
// Implementations exist for gorm (postgres/sqlite), redis and memory.
type KV interface {
	// Get returns the value for key, or ErrNotFound
	Get(ctx context.Context, key string) (string, error)
	// Set writes the value for key, overwriting any previous value
	Set(ctx context.Context, key, value string) error
	// Delete removes the key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
	// Keys returns all keys with the given prefix, sorted
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MemoryKV is an in-process KV backend used in tests and ephemeral mode
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryKV creates an empty in-memory backend
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string]string)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = value
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

func (m *MemoryKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
