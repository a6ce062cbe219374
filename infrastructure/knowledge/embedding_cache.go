package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ ports.Embedder = (*CachedEmbedder)(nil)

const (
	// DefaultEmbeddingTTL bounds how long cached query embeddings live.
	DefaultEmbeddingTTL = 24 * time.Hour
	// DefaultFlightTimeout bounds a shared upstream embedding call.
	DefaultFlightTimeout = 30 * time.Second
)

// CachedEmbedder memoizes embeddings in a ports.CacheStore. Concurrent
// requests for the same uncached texts share one upstream call.
type CachedEmbedder struct {
	next   ports.Embedder
	cache  ports.CacheStore
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger

	// flightTimeout bounds the shared call, which outlives any one caller.
	flightTimeout time.Duration
}

// NewCachedEmbedder wraps next. A non-positive ttl selects
// DefaultEmbeddingTTL.
func NewCachedEmbedder(next ports.Embedder, cache ports.CacheStore, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		next:          next,
		cache:         cache,
		ttl:           ttl,
		logger:        logger,
		flightTimeout: DefaultFlightTimeout,
	}
}

// Model returns the wrapped embedder's model.
func (c *CachedEmbedder) Model() string { return c.next.Model() }

// Embed returns cached vectors where available and embeds the rest in a
// single upstream call. Cache failures are logged and treated as misses.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var (
		missing    []string
		missingIdx []int
	)
	for i, text := range texts {
		keys[i] = c.key(text)
		if v, ok := c.lookup(ctx, keys[i]); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	// The shared call ignores caller cancellation; each caller waits on its
	// own ctx.
	flightKey := strings.Join(keysAt(keys, missingIdx), "|")
	ch := c.group.DoChan(flightKey, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		return c.embedAndStore(flightCtx, missing, keysAt(keys, missingIdx))
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	embedded := res.Val.([][]float32)
	for j, i := range missingIdx {
		vectors[i] = embedded[j]
	}
	return vectors, nil
}

// embedAndStore embeds texts upstream and caches each vector under the key
// at the same position.
func (c *CachedEmbedder) embedAndStore(ctx context.Context, texts, keys []string) ([][]float32, error) {
	embedded, err := c.next.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embedded), len(texts))
	}
	for j, key := range keys {
		if err := c.cache.Set(ctx, key, encodeVector(embedded[j]), c.ttl); err != nil {
			c.logger.Warn("failed to cache embedding", zap.String("key", key), zap.Error(err))
		}
	}
	return embedded, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	value, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("embedding cache lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	data, isBytes := value.([]byte)
	if !isBytes {
		c.logger.Warn("unexpected embedding cache value", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", value)))
		return nil, false
	}
	vec, err := decodeVector(data)
	if err != nil {
		c.logger.Warn("corrupt embedding cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.next.Model() + ":" + hex.EncodeToString(sum[:])
}

func keysAt(keys []string, idx []int) []string {
	out := make([]string, len(idx))
	for j, i := range idx {
		out[j] = keys[i]
	}
	return out
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of float32s", ports.ErrCacheCorrupted, len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
