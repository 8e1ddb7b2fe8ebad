package embed

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/monitoring"
)

// Cache stores vectors by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}

// CachedEmbedder memoizes an Embedder. Cache failures are logged and
// bypassed so a cache outage never fails an embedding.
type CachedEmbedder struct {
	inner   Embedder
	cache   Cache
	ttl     time.Duration
	prefix  string
	metrics *monitoring.Metrics
}

// NewCachedEmbedder wraps inner. namespace separates keys of different
// models sharing one cache.
func NewCachedEmbedder(inner Embedder, cache Cache, namespace string, ttl time.Duration, metrics *monitoring.Metrics) *CachedEmbedder {
	return &CachedEmbedder{
		inner:   inner,
		cache:   cache,
		ttl:     ttl,
		prefix:  "bioscope:embed:" + namespace + ":" + strconv.Itoa(inner.Dimensions()) + ":",
		metrics: metrics,
	}
}

// Dimensions implements Embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	vec, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.metrics.ObserveCache("error")
		zap.L().Debug("embed: cache get failed", zap.String("key", key), zap.Error(err))
	case ok:
		c.metrics.ObserveCache("hit")
		return vec, nil
	default:
		c.metrics.ObserveCache("miss")
	}

	vec, err = c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec, c.ttl); err != nil {
		zap.L().Debug("embed: cache set failed", zap.String("key", key), zap.Error(err))
	}
	return vec, nil
}

func (c *CachedEmbedder) key(text string) string {
	return c.prefix + strconv.FormatUint(xxhash.Sum64String(text), 16)
}

// RedisCache is a Cache backed by Redis string values.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// NewRedisClient parses url, connects, and pings. An empty url returns
// nil, nil so callers can treat the cache as optional.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "embed: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "embed: redis ping")
	}
	return client, nil
}

// Get implements Cache.
func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "embed: redis get")
	}
	vec, err := decodeVector(b)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set implements Cache.
func (r *RedisCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	return eris.Wrap(r.client.Set(ctx, key, encodeVector(vec), ttl).Err(), "embed: redis set")
}

func encodeVector(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, eris.Errorf("embed: cached vector has %d bytes, not a multiple of 4", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}
