package embedder

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainProvider embeds through any OpenAI-compatible server (Ollama,
// vLLM, LM Studio) using langchaingo
type LangchainProvider struct {
	embedder  embeddings.Embedder
	model     string
	cache     Cache
	retry     RetryConfig
	dimension atomic.Int64
}

// DefaultOllamaHost is Ollama's OpenAI-compatible base URL
const DefaultOllamaHost = "http://localhost:11434/v1"

// NewOllamaProvider creates an embedder for an OpenAI-compatible server.
// apiKey may be empty for local servers that do not authenticate.
func NewOllamaProvider(apiKey string, opts ...Option) (*LangchainProvider, error) {
	o := defaultOptions()
	o.model = DefaultOllamaModel
	o.endpoint = DefaultOllamaHost
	for _, opt := range opts {
		opt(&o)
	}

	if apiKey == "" {
		apiKey = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(o.endpoint),
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(o.model),
		openai.WithHTTPClient(o.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProviderEnabled, err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProviderEnabled, err)
	}

	return &LangchainProvider{
		embedder: emb,
		model:    o.model,
		cache:    o.cache,
		retry:    o.retry,
	}, nil
}

func (l *LangchainProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := l.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (l *LangchainProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings, err := cachedBatch(ctx, l.cache, ProviderOllama, l.model, req.Texts, func(texts []string) ([]*Embedding, error) {
		vectors, err := retryWithBackoff(ctx, l.retry, func() ([][]float32, error) {
			return l.embedder.EmbedDocuments(ctx, texts)
		})
		if err != nil {
			return nil, err
		}

		out := make([]*Embedding, len(vectors))
		for i, v := range vectors {
			out[i] = &Embedding{
				Vector:    v,
				Dimension: len(v),
				Provider:  ProviderOllama,
				Model:     l.model,
			}
			l.dimension.Store(int64(len(v)))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOllama,
		Model:      l.model,
	}, nil
}

func (l *LangchainProvider) Dimension() int {
	return int(l.dimension.Load())
}

func (l *LangchainProvider) Provider() string {
	return ProviderOllama
}

func (l *LangchainProvider) Model() string {
	return l.model
}

func (l *LangchainProvider) Close() error {
	if l.cache != nil {
		return closeCache(l.cache)
	}
	return nil
}
