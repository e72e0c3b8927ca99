// Package slot provides durable named key-value slots for saved games.
package slot

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var (
	ErrNotFound      = errors.New("slot empty")
	ErrQuotaExceeded = errors.New("slot quota exceeded")
)

// Store is a durable key-value store holding one value per key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

func checkQuota(maxBytes int, data []byte) error {
	if maxBytes > 0 && len(data) > maxBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrQuotaExceeded, len(data), maxBytes)
	}
	return nil
}

// MemoryStore keeps slots in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	maxBytes int
}

func NewMemoryStore(maxBytes int) *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte), maxBytes: maxBytes}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	if err := checkQuota(m.maxBytes, data); err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = slices.Clone(data)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Keys lists stored keys, sorted.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.data))
}
