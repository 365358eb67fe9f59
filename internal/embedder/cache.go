package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheSize = 10000
	redisKeyPrefix   = "embedding:"
	defaultRedisTTL  = 24 * time.Hour
)

// Cache stores embeddings by cache key. Implementations treat backend errors
// as misses; a cache never fails an embedding call.
type Cache interface {
	Get(ctx context.Context, key string) (*Embedding, bool)
	Set(ctx context.Context, key string, emb *Embedding)
}

// copyEmbedding returns a deep copy so callers cannot mutate cached vectors
func copyEmbedding(emb *Embedding) *Embedding {
	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}
}

// LRUCache provides in-process LRU caching of embeddings
type LRUCache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *LRUCache {
	if maxLen <= 0 {
		maxLen = defaultCacheSize
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](defaultCacheSize)
	}
	return &LRUCache{cache: cache}
}

func (c *LRUCache) Get(_ context.Context, key string) (*Embedding, bool) {
	emb, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return copyEmbedding(emb), true
}

func (c *LRUCache) Set(_ context.Context, key string, emb *Embedding) {
	c.cache.Add(key, copyEmbedding(emb))
}

// Size returns the current cache size
func (c *LRUCache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *LRUCache) Clear() {
	c.cache.Purge()
}

// RedisCache shares embeddings between processes through Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps a connected client; ttl <= 0 uses 24h
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Embedding, bool) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}

	var emb Embedding
	if err := json.Unmarshal(val, &emb); err != nil || len(emb.Vector) == 0 {
		return nil, false
	}
	return &emb, true
}

func (c *RedisCache) Set(ctx context.Context, key string, emb *Embedding) {
	val, err := json.Marshal(emb)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, redisKeyPrefix+key, val, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// TieredCache checks layers in order and fills faster layers on a hit in a slower one
type TieredCache struct {
	layers []Cache
}

func NewTieredCache(layers ...Cache) *TieredCache {
	return &TieredCache{layers: layers}
}

func (t *TieredCache) Get(ctx context.Context, key string) (*Embedding, bool) {
	for i, layer := range t.layers {
		emb, ok := layer.Get(ctx, key)
		if !ok {
			continue
		}
		for j := 0; j < i; j++ {
			t.layers[j].Set(ctx, key, emb)
		}
		return emb, true
	}
	return nil, false
}

func (t *TieredCache) Set(ctx context.Context, key string, emb *Embedding) {
	for _, layer := range t.layers {
		layer.Set(ctx, key, emb)
	}
}

func (t *TieredCache) Close() error {
	var errs []error
	for _, layer := range t.layers {
		if c, ok := layer.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// closeCache closes caches that hold connections
func closeCache(c Cache) error {
	if closer, ok := c.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
