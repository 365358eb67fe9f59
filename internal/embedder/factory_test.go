package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/config"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.EmbeddingConfig
		want string
	}{
		{name: "explicit wins", cfg: config.EmbeddingConfig{Provider: "OLLAMA", JinaAPIKey: "j"}, want: ProviderOllama},
		{name: "jina key", cfg: config.EmbeddingConfig{JinaAPIKey: "j", OpenAIAPIKey: "o"}, want: ProviderJina},
		{name: "openai key", cfg: config.EmbeddingConfig{OpenAIAPIKey: "o"}, want: ProviderOpenAI},
		{name: "nothing configured", cfg: config.EmbeddingConfig{}, want: ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectProvider(tt.cfg))
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		emb, err := NewFromConfig(ctx, config.EmbeddingConfig{Provider: ProviderLocal, CacheSize: 10})
		require.NoError(t, err)
		defer emb.Close()
		assert.Equal(t, ProviderLocal, emb.Provider())
	})

	t.Run("openai with model override", func(t *testing.T) {
		emb, err := NewFromConfig(ctx, config.EmbeddingConfig{OpenAIAPIKey: "o", Model: "text-embedding-3-large"})
		require.NoError(t, err)
		defer emb.Close()
		assert.Equal(t, ProviderOpenAI, emb.Provider())
		assert.Equal(t, "text-embedding-3-large", emb.Model())
	})

	t.Run("explicit provider without key", func(t *testing.T) {
		_, err := NewFromConfig(ctx, config.EmbeddingConfig{Provider: ProviderJina})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewFromConfig(ctx, config.EmbeddingConfig{Provider: "word2vec"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})

	t.Run("invalid redis url", func(t *testing.T) {
		_, err := NewFromConfig(ctx, config.EmbeddingConfig{Provider: ProviderLocal, RedisURL: "not a url"})
		assert.Error(t, err)
	})
}
