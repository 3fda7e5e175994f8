// Package metadata is the key-value persistence substrate of the profile
// store. Keys are strings, values are opaque byte slices; the store never
// interprets them.
//
// Two implementations are provided: SQLiteRepository (the metadata table of
// the client database) and MemoryRepository (tests, ephemeral sessions).
// Both also implement Batcher so a group of writes can be applied
// atomically.
package metadata

import (
	"context"
)

// Repository is a flat key-value store.
//
// Get returns (nil, nil) for an absent key. Delete of an absent key is not
// an error.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}

// Batcher is implemented by repositories that can run fn so that either all
// of its writes are visible afterwards or none are. The Repository passed to
// fn must be used instead of the receiver.
type Batcher interface {
	Batch(ctx context.Context, fn func(ctx context.Context, r Repository) error) error
}

// RunBatch calls r.Batch when r supports batching and fn(ctx, r) otherwise.
func RunBatch(ctx context.Context, r Repository, fn func(ctx context.Context, r Repository) error) error {
	if b, ok := r.(Batcher); ok {
		return b.Batch(ctx, fn)
	}
	return fn(ctx, r)
}
