package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

const localModel = "trigram-hash-384"

// LocalProvider embeds text offline by hashing character trigrams of each word
// into a fixed number of buckets. Texts that share spellings score high, which
// suits medication and manufacturer names; it has no notion of synonyms.
type LocalProvider struct {
	cache Cache
}

// NewLocalProvider creates a deterministic offline embedder
func NewLocalProvider(opts ...Option) (*LocalProvider, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &LocalProvider{cache: o.cache}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := l.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings, err := cachedBatch(ctx, l.cache, ProviderLocal, localModel, req.Texts, func(texts []string) ([]*Embedding, error) {
		out := make([]*Embedding, len(texts))
		for i, text := range texts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			vector, err := trigramVector(text)
			if err != nil {
				return nil, fmt.Errorf("embedding text %d: %w", i, err)
			}
			out[i] = &Embedding{
				Vector:    vector,
				Dimension: LocalDimension,
				Provider:  ProviderLocal,
				Model:     localModel,
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      localModel,
	}, nil
}

// trigramVector builds an L2-normalized bucket count of word trigrams.
// Words are padded with a space on each side so prefixes and suffixes count.
func trigramVector(text string) ([]float32, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, ErrEmptyText
	}

	vector := make([]float32, LocalDimension)
	h := fnv.New32a()
	for _, word := range words {
		runes := []rune(" " + word + " ")
		for i := 0; i+3 <= len(runes); i++ {
			h.Reset()
			_, _ = h.Write([]byte(string(runes[i : i+3])))
			vector[h.Sum32()%LocalDimension]++
		}
	}

	return NormalizeVector(vector), nil
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return localModel
}

func (l *LocalProvider) Close() error {
	if l.cache != nil {
		return closeCache(l.cache)
	}
	return nil
}
