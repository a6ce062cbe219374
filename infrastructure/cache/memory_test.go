package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", []float32{1, 2}, 0))
	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, v)

	require.NoError(t, store.Delete(ctx, "k"))
	_, ok, _ = store.Get(ctx, "k")
	assert.False(t, ok, "deleted key should be gone")

	assert.NoError(t, store.Delete(ctx, "never-set"), "deleting a missing key is not an error")
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "short", "v", time.Minute))
	require.NoError(t, store.Set(ctx, "forever", "v", 0))

	now = now.Add(59 * time.Second)
	_, ok, _ := store.Get(ctx, "short")
	assert.True(t, ok, "entry should live until its expiry")

	now = now.Add(time.Second)
	_, ok, _ = store.Get(ctx, "short")
	assert.False(t, ok, "entry should expire at its deadline")
	assert.Equal(t, 1, store.Len(), "expired entry should be dropped on access")

	now = now.Add(24 * time.Hour)
	_, ok, _ = store.Get(ctx, "forever")
	assert.True(t, ok, "zero expiration never expires")
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := range 5 {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("k%d", i), i, 0))
	}

	require.NoError(t, store.Clear(ctx))
	assert.Zero(t, store.Len())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			_ = store.Set(ctx, key, i, time.Minute)
			_, _, _ = store.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, store.Len())
}
