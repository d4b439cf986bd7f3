package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store, used by tests and single-node demos
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string

	// FailUploads makes every Upload fail, for exercising storage errors
	FailUploads bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (m *MemoryStore) Download(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUploads {
		return fmt.Errorf("upload %s: simulated failure", key)
	}
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return nil
}

// Len returns the number of stored objects
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
