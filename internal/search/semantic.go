package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/embedder"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/logger"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// Semantic ranks programs by similarity between the query and program embeddings
type Semantic struct {
	store        storage.Store
	embedder     embedder.Embedder
	embedTimeout time.Duration
	storeTimeout time.Duration
	log          *logger.Logger
}

// NewSemantic builds a semantic search over store using emb for queries. A nil
// log discards output.
func NewSemantic(store storage.Store, emb embedder.Embedder, embedTimeout, storeTimeout time.Duration, log *logger.Logger) *Semantic {
	if log == nil {
		log = logger.Nop()
	}
	return &Semantic{
		store:        store,
		embedder:     emb,
		embedTimeout: embedTimeout,
		storeTimeout: storeTimeout,
		log:          log,
	}
}

// Search embeds query and returns hits at or above minSimilarity, best first.
//
// Errors wrap types.ErrProviderUnavailable when the query could not be
// embedded (including a timeout) and types.ErrSimilarityUnavailable when the
// store could not run the similarity search. An empty result is not an error.
// Cancellation of ctx itself is returned unwrapped.
func (s *Semantic) Search(ctx context.Context, query string, limit int, minSimilarity float64) ([]types.ScoredProgram, error) {
	term := strings.TrimSpace(query)
	if term == "" {
		return []types.ScoredProgram{}, nil
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", types.ErrInvalidQuery, limit)
	}
	if minSimilarity < 0 || minSimilarity > 1 {
		return nil, fmt.Errorf("%w: min similarity must be within [0,1], got %v", types.ErrInvalidQuery, minSimilarity)
	}

	vector, err := s.embed(ctx, term)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	hits, err := s.store.SearchBySimilarity(storeCtx, vector, minSimilarity, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("similarity search failed", "error", err)
		if errors.Is(err, types.ErrSimilarityUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", types.ErrSimilarityUnavailable, err)
	}

	ranked := storage.RankScored(hits, minSimilarity, limit)
	s.log.Debug("similarity search ranked", "candidates", len(hits), "results", len(ranked), "threshold", minSimilarity)
	return ranked, nil
}

func (s *Semantic) embed(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := withTimeout(ctx, s.embedTimeout)
	defer cancel()

	emb, err := s.embedder.GenerateEmbedding(embedCtx, embedder.EmbeddingRequest{Text: text})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("query embedding failed", "provider", s.embedder.Provider(), "error", err)
		return nil, fmt.Errorf("%w: %v", types.ErrProviderUnavailable, err)
	}
	if err := storage.ValidateVector(emb.Vector); err != nil {
		s.log.Warn("query embedding rejected", "provider", s.embedder.Provider(), "error", err)
		return nil, fmt.Errorf("%w: %v", types.ErrProviderUnavailable, err)
	}

	return embedder.NormalizeVector(emb.Vector), nil
}
