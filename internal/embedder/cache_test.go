package embedder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache is an in-memory Cache that counts calls
type mapCache struct {
	mu   sync.Mutex
	data map[string]*Embedding
	gets int
	sets int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]*Embedding)}
}

func (m *mapCache) Get(_ context.Context, key string) (*Embedding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	emb, ok := m.data[key]
	return emb, ok
}

func (m *mapCache) Set(_ context.Context, key string, emb *Embedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.data[key] = emb
}

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("returns copies", func(t *testing.T) {
		c := NewCache(10)
		c.Set(ctx, "k", &Embedding{Vector: []float32{1, 2}, Dimension: 2})

		got, ok := c.Get(ctx, "k")
		require.True(t, ok)
		got.Vector[0] = 99

		again, _ := c.Get(ctx, "k")
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		c := NewCache(2)
		c.Set(ctx, "a", &Embedding{Vector: []float32{1}})
		c.Set(ctx, "b", &Embedding{Vector: []float32{2}})
		_, _ = c.Get(ctx, "a")
		c.Set(ctx, "c", &Embedding{Vector: []float32{3}})

		_, okA := c.Get(ctx, "a")
		_, okB := c.Get(ctx, "b")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.Equal(t, 2, c.Size())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		c := NewCache(0)
		c.Set(ctx, "k", &Embedding{Vector: []float32{1}})
		assert.Equal(t, 1, c.Size())
		c.Clear()
		assert.Equal(t, 0, c.Size())
	})
}

func TestTieredCache(t *testing.T) {
	ctx := context.Background()
	fast, slow := newMapCache(), newMapCache()
	tiered := NewTieredCache(fast, slow)

	slow.Set(ctx, "k", &Embedding{Vector: []float32{1}})

	got, ok := tiered.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []float32{1}, got.Vector)
	assert.Contains(t, fast.data, "k", "hit in slow layer fills fast layer")

	_, ok = tiered.Get(ctx, "missing")
	assert.False(t, ok)

	tiered.Set(ctx, "n", &Embedding{Vector: []float32{2}})
	assert.Contains(t, fast.data, "n")
	assert.Contains(t, slow.data, "n")
}

func TestRedisCacheUnreachableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisCache(client, 0)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k", &Embedding{Vector: []float32{1}})
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}
