package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/config"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/embedder"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/logger"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// Fallback reasons reported in Result.FallbackReason
const (
	ReasonProviderUnavailable   = "provider_unavailable"
	ReasonSimilarityUnavailable = "similarity_unavailable"
	ReasonEmptySemanticResult   = "empty_semantic_result"
	ReasonSemanticDisabled      = "semantic_disabled"
)

// Result is the normalized answer of the router regardless of which path served it
type Result struct {
	Programs       []*types.Program   `json:"programs"`
	Similarities   []float64          `json:"similarities,omitempty"` // Parallel to Programs, semantic only
	Method         types.SearchMethod `json:"method"`
	FallbackReason string             `json:"fallback_reason,omitempty"`
	Duration       time.Duration      `json:"-"`
}

// Router serves queries semantic-first with lexical fallback. It holds no
// mutable state and is safe for concurrent use.
type Router struct {
	lexical  *Lexical
	semantic *Semantic // nil disables the semantic path
	log      *logger.Logger

	minSimilarity  float64
	defaultLimit   int
	maxLimit       int
	minQueryLength int
	embedTimeout   time.Duration
	storeTimeout   time.Duration
}

// Option configures a Router
type Option func(*Router)

func WithLogger(l *logger.Logger) Option {
	return func(r *Router) { r.log = l }
}

// WithMinSimilarity sets the semantic confidence threshold
func WithMinSimilarity(min float64) Option {
	return func(r *Router) { r.minSimilarity = min }
}

// WithLimits sets the limit used when callers pass none and the upper clamp
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(r *Router) {
		r.defaultLimit = defaultLimit
		r.maxLimit = maxLimit
	}
}

func WithMinQueryLength(n int) Option {
	return func(r *Router) { r.minQueryLength = n }
}

// WithTimeouts bounds the query embedding call and each store round-trip
func WithTimeouts(embed, store time.Duration) Option {
	return func(r *Router) {
		r.embedTimeout = embed
		r.storeTimeout = store
	}
}

// WithConfig applies every search setting from cfg
func WithConfig(cfg config.SearchConfig) Option {
	return func(r *Router) {
		r.minSimilarity = cfg.MinSimilarity
		r.defaultLimit = cfg.DefaultLimit
		r.maxLimit = cfg.MaxLimit
		r.minQueryLength = cfg.MinQueryLength
		r.embedTimeout = cfg.EmbedTimeout
		r.storeTimeout = cfg.StoreTimeout
	}
}

// NewRouter builds a router over store. A nil embedder serves lexical results only.
func NewRouter(store storage.Store, emb embedder.Embedder, opts ...Option) *Router {
	r := &Router{
		log:            logger.Nop(),
		minSimilarity:  config.DefaultMinSimilarity,
		defaultLimit:   config.DefaultLimit,
		maxLimit:       config.DefaultMaxLimit,
		minQueryLength: config.DefaultMinQueryLength,
		embedTimeout:   config.DefaultEmbedTimeout,
		storeTimeout:   config.DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.lexical = NewLexical(store, r.storeTimeout, r.log.With("component", "lexical"))
	if emb != nil {
		r.semantic = NewSemantic(store, emb, r.embedTimeout, r.storeTimeout, r.log.With("component", "semantic"))
	}
	return r
}

// NormalizeLimit maps limit <= 0 to the default and clamps to the maximum
func (r *Router) NormalizeLimit(limit int) int {
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if r.maxLimit > 0 && limit > r.maxLimit {
		limit = r.maxLimit
	}
	return limit
}

// Search answers query with at most limit programs.
//
// Queries shorter than the minimum length return an empty result without
// calling the provider or the store. The only errors are ctx cancellation and
// types.ErrSearchUnavailable when the store cannot serve the lexical path.
func (r *Router) Search(ctx context.Context, query string, limit int) (*Result, error) {
	start := time.Now()
	term := strings.TrimSpace(query)
	limit = r.NormalizeLimit(limit)

	if utf8.RuneCountInString(term) < r.minQueryLength {
		return &Result{Programs: []*types.Program{}, Method: types.MethodNone, Duration: time.Since(start)}, nil
	}

	reason := ReasonSemanticDisabled
	if r.semantic != nil {
		hits, err := r.semantic.Search(ctx, term, limit, r.minSimilarity)
		switch {
		case err == nil && len(hits) > 0:
			res := &Result{
				Programs:     types.Programs(hits),
				Similarities: make([]float64, len(hits)),
				Method:       types.MethodSemantic,
			}
			for i, h := range hits {
				res.Similarities[i] = h.Similarity
			}
			res.Duration = time.Since(start)
			r.log.Debug("semantic search served", "results", len(hits), "duration", res.Duration)
			return res, nil
		case err == nil:
			reason = ReasonEmptySemanticResult
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, types.ErrProviderUnavailable):
			reason = ReasonProviderUnavailable
		default:
			reason = ReasonSimilarityUnavailable
		}

		if err != nil {
			r.log.Warn("semantic search unavailable, falling back to lexical", "reason", reason, "error", err)
		} else {
			r.log.Debug("no semantic match above threshold, falling back to lexical", "threshold", r.minSimilarity)
		}
	}

	programs, err := r.lexical.Search(ctx, term, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.Error("lexical search failed", "error", err)
		return nil, fmt.Errorf("%w: %v", types.ErrSearchUnavailable, err)
	}

	res := &Result{
		Programs:       programs,
		Method:         types.MethodLexical,
		FallbackReason: reason,
		Duration:       time.Since(start),
	}
	r.log.Debug("lexical search served", "results", len(programs), "reason", reason, "duration", res.Duration)
	return res, nil
}
