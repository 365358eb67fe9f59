package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

// embeddingServer answers OpenAI-style requests with vectors [len(text), index],
// returned in reverse order to exercise index sorting
func embeddingServer(t *testing.T, calls *atomic.Int32, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]datum, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, datum{Embedding: []float32{float32(len(req.Input[i])), float32(i)}, Index: i})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": req.Model, "data": data})
	}))
}

func TestHTTPProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("requires api key", func(t *testing.T) {
		_, err := NewJinaProvider("")
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
		_, err = NewOpenAIProvider("")
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("metadata", func(t *testing.T) {
		jina, err := NewJinaProvider("k")
		require.NoError(t, err)
		assert.Equal(t, ProviderJina, jina.Provider())
		assert.Equal(t, DefaultJinaModel, jina.Model())
		assert.Equal(t, JinaDimension, jina.Dimension())

		openai, err := NewOpenAIProvider("k", WithModel("text-embedding-3-large"))
		require.NoError(t, err)
		assert.Equal(t, "text-embedding-3-large", openai.Model())
		assert.Equal(t, OpenAIDimension, openai.Dimension())
	})

	t.Run("batch keeps input order", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, &calls, http.StatusOK)
		defer server.Close()

		p, err := NewOpenAIProvider("test-key", WithEndpoint(server.URL), WithRetry(fastRetry()))
		require.NoError(t, err)

		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "bbb"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)
		assert.Equal(t, []float32{1, 0}, resp.Embeddings[0].Vector)
		assert.Equal(t, []float32{3, 1}, resp.Embeddings[1].Vector)
		assert.Equal(t, ProviderOpenAI, resp.Provider)
	})

	t.Run("cache avoids repeat calls", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, &calls, http.StatusOK)
		defer server.Close()

		p, err := NewJinaProvider("test-key", WithEndpoint(server.URL), WithCache(NewCache(10)), WithRetry(fastRetry()))
		require.NoError(t, err)

		first, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "ozempic"})
		require.NoError(t, err)
		second, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "ozempic"})
		require.NoError(t, err)

		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, first.Vector, second.Vector)
		assert.NotEmpty(t, second.Hash)

		// only the uncached text goes over the wire
		_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"ozempic", "trulicity"}})
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, &calls, http.StatusServiceUnavailable)
		defer server.Close()

		p, err := NewOpenAIProvider("test-key", WithEndpoint(server.URL), WithRetry(fastRetry()))
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, &calls, http.StatusUnauthorized)
		defer server.Close()

		p, err := NewOpenAIProvider("test-key", WithEndpoint(server.URL), WithRetry(fastRetry()))
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Contains(t, err.Error(), "401")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("timeout surfaces as deadline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		p, err := NewOpenAIProvider("test-key", WithEndpoint(server.URL), WithRetry(fastRetry()))
		require.NoError(t, err)

		tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = p.GenerateEmbedding(tctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		got, err := retryWithBackoff(ctx, fastRetry(), func() (int, error) {
			attempts++
			if attempts < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns last error", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(ctx, fastRetry(), func() (int, error) {
			attempts++
			return 0, errors.New("still down")
		})
		assert.EqualError(t, err, "still down")
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		attempts := 0
		cause := errors.New("bad request")
		_, err := retryWithBackoff(ctx, fastRetry(), func() (int, error) {
			attempts++
			return 0, permanent(cause)
		})
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, 1, attempts)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		attempts := 0
		_, err := retryWithBackoff(cctx, fastRetry(), func() (int, error) {
			attempts++
			cancel()
			return 0, errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}

func TestOllamaProvider(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"nomic-embed-text","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer server.Close()

	p, err := NewOllamaProvider("", WithEndpoint(server.URL+"/v1"), WithRetry(fastRetry()), WithCache(NewCache(10)))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, ProviderOllama, p.Provider())
	assert.Equal(t, DefaultOllamaModel, p.Model())
	assert.Equal(t, 0, p.Dimension(), "dimension unknown before first call")

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "humira\ncomplete"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb.Vector)
	assert.Equal(t, 3, p.Dimension())

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "humira\ncomplete"})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], "/embeddings"))
}
