package collab

import (
	"context"
	"sync"
)

// NewMemoryStore returns a process-local Store, used when no Redis address
// is configured. State is lost on restart and not shared between replicas.
func NewMemoryStore() Store {
	return &jsonStore{backend: &memoryBackend{hashes: make(map[string]map[string][]byte)}}
}

type memoryBackend struct {
	mu     sync.RWMutex
	hashes map[string]map[string][]byte
}

func (b *memoryBackend) hget(_ context.Context, key, field string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.hashes[key][field]
	return data, ok, nil
}

func (b *memoryBackend) hset(_ context.Context, key, field string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		b.hashes[key] = h
	}
	h[field] = append([]byte(nil), value...)
	return nil
}

func (b *memoryBackend) hdel(_ context.Context, key, field string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.hashes[key], field)
	return nil
}

func (b *memoryBackend) ping(context.Context) error { return nil }
