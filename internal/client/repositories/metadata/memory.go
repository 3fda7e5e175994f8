package metadata

import (
	"context"
	"maps"
	"sync"
)

// MemoryRepository is an in-process Repository. It is safe for concurrent
// use.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string][]byte)}
}

func (r *MemoryRepository) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[key]
	if !ok {
		return nil, nil
	}
	return clone(v), nil
}

func (r *MemoryRepository) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = clone(value)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

func (r *MemoryRepository) List(_ context.Context) (map[string][]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]byte, len(r.data))
	for k, v := range r.data {
		out[k] = clone(v)
	}
	return out, nil
}

func (r *MemoryRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.data)
	return nil
}

// Batch applies fn to a private copy and publishes it only when fn succeeds.
// Writers are blocked for the duration of fn.
func (r *MemoryRepository) Batch(ctx context.Context, fn func(ctx context.Context, r Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := &MemoryRepository{data: maps.Clone(r.data)}
	if err := fn(ctx, work); err != nil {
		return err
	}
	r.data = work.data
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
