package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-trustrag/internal/ports"
)

func TestNewRedisStore_RequiresAddress(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

func TestNewRedisStore_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis at 127.0.0.1:1")
}

func TestRedisStore_ErrorsAreCacheErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	store := NewRedisStoreWithClient(client, "")
	defer store.Close()
	ctx := context.Background()

	_, _, err := store.Get(ctx, "k")
	var cacheErr *ports.CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "get", cacheErr.Operation)
	assert.Equal(t, "k", cacheErr.Key)

	err = store.Set(ctx, "k", []float32{1}, time.Minute)
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "set", cacheErr.Operation)

	err = store.Set(ctx, "k", make(chan int), 0)
	require.ErrorAs(t, err, &cacheErr)
	assert.Contains(t, err.Error(), "failed to encode value")
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	store := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "")
	defer store.Close()
	assert.Equal(t, "trustrag:emb:abc", store.key("emb:abc"))

	custom := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "test:")
	defer custom.Close()
	assert.Equal(t, "test:x", custom.key("x"))
}
