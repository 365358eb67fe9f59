package embedder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/config"
)

// NewFromConfig builds the configured provider with its cache stack.
// An empty provider name auto-detects from the available API keys.
func NewFromConfig(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	cache, err := NewCacheFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithCache(cache), WithModel(cfg.Model)}

	emb, err := newProvider(DetectProvider(cfg), cfg, opts)
	if err != nil {
		_ = closeCache(cache)
		return nil, err
	}
	return emb, nil
}

func newProvider(provider string, cfg config.EmbeddingConfig, opts []Option) (Embedder, error) {
	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg.JinaAPIKey, opts...)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, opts...)
	case ProviderOllama:
		return NewOllamaProvider(cfg.OpenAIAPIKey, append(opts, WithEndpoint(cfg.Host))...)
	case ProviderLocal:
		return NewLocalProvider(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
	}
}

// NewCacheFromConfig returns an LRU cache, fronting Redis when a URL is set
func NewCacheFromConfig(ctx context.Context, cfg config.EmbeddingConfig) (Cache, error) {
	local := NewCache(cfg.CacheSize)
	if cfg.RedisURL == "" {
		return local, nil
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	redisOpts.DialTimeout = 5 * time.Second

	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewTieredCache(local, NewRedisCache(client, cfg.CacheTTL)), nil
}

// DetectProvider returns the provider that cfg selects.
// Priority: explicit provider, Jina key, OpenAI key, local.
func DetectProvider(cfg config.EmbeddingConfig) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if cfg.JinaAPIKey != "" {
		return ProviderJina
	}
	if cfg.OpenAIAPIKey != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
