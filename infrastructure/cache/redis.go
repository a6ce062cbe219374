package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ ports.CacheStore = (*RedisStore)(nil)

// DefaultKeyPrefix namespaces every key written by RedisStore.
const DefaultKeyPrefix = "trustrag:"

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix is prepended to every key. Clear only removes keys with
	// this prefix. Empty selects DefaultKeyPrefix.
	KeyPrefix string

	DialTimeout time.Duration
}

// RedisStore is a ports.CacheStore on a Redis server. Values that are
// []byte or string are stored as is; anything else is JSON encoded. Get
// always returns the stored bytes.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.Addr, err)
	}

	return NewRedisStoreWithClient(client, config.KeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (r *RedisStore) key(key string) string { return r.keyPrefix + key }

// Get returns the raw bytes stored under key.
func (r *RedisStore) Get(ctx context.Context, key string) (any, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ports.NewCacheError(key, "get", err)
	}
	return data, true, nil
}

// Set stores value under key. A zero expiration never expires.
func (r *RedisStore) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ports.NewCacheError(key, "set", fmt.Errorf("failed to encode value: %w", err))
		}
		data = encoded
	}

	if err := r.client.Set(ctx, r.key(key), data, expiration).Err(); err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	return nil
}

// Delete removes key. Missing keys are ignored.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return ports.NewCacheError(key, "delete", err)
	}
	return nil
}

// Clear removes every key under the store's prefix. Keys are found with
// SCAN in batches of 100.
func (r *RedisStore) Clear(ctx context.Context) error {
	pattern := r.keyPrefix + "*"
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return ports.NewCacheError(pattern, "clear", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return ports.NewCacheError(pattern, "clear", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error { return r.client.Close() }
