package metadata

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_Contract(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	v, err := r.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, r.Set(ctx, "a", []byte("1")))
	require.NoError(t, r.Set(ctx, "a", []byte("2")))
	require.NoError(t, r.Set(ctx, "b", nil))

	v, err = r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	v, err = r.Get(ctx, "b")
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Empty(t, v)

	require.NoError(t, r.Delete(ctx, "a"))
	require.NoError(t, r.Delete(ctx, "a"))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, m, 1)

	require.NoError(t, r.Clear(ctx))
	m, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestMemoryRepository_ValuesAreCopied(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	in := []byte("abc")
	require.NoError(t, r.Set(ctx, "k", in))
	in[0] = 'X'

	out, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)

	out[1] = 'Y'
	again, _ := r.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryRepository_Batch(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, r.Set(ctx, "keep", []byte("x")))

	boom := errors.New("boom")
	err := RunBatch(ctx, r, func(ctx context.Context, tx Repository) error {
		_ = tx.Set(ctx, "new", []byte("1"))
		_ = tx.Delete(ctx, "keep")
		return boom
	})
	require.ErrorIs(t, err, boom)

	m, _ := r.List(ctx)
	assert.Equal(t, map[string][]byte{"keep": []byte("x")}, m)

	require.NoError(t, RunBatch(ctx, r, func(ctx context.Context, tx Repository) error {
		_ = tx.Set(ctx, "new", []byte("1"))
		return tx.Delete(ctx, "keep")
	}))
	m, _ = r.List(ctx)
	assert.Equal(t, map[string][]byte{"new": []byte("1")}, m)
}

type plainRepo struct{ Repository }

func TestRunBatch_FallsBackWithoutBatcher(t *testing.T) {
	inner := NewMemoryRepository()
	ctx := context.Background()

	boom := errors.New("boom")
	err := RunBatch(ctx, plainRepo{inner}, func(ctx context.Context, r Repository) error {
		_ = r.Set(ctx, "partial", []byte("1"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	v, _ := inner.Get(ctx, "partial")
	assert.Equal(t, []byte("1"), v, "without batching writes are applied directly")
}

func TestMemoryRepository_Concurrent(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			_ = r.Set(ctx, key, []byte{byte(i)})
			_, _ = r.Get(ctx, key)
			_, _ = r.List(ctx)
		}(i)
	}
	wg.Wait()

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, m, 16)
}
