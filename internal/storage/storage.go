package storage

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

var (
	// ErrNotFound is returned when a requested program doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidVector is returned when an embedding is empty or malformed
	ErrInvalidVector = errors.New("invalid embedding vector")
)

// Store defines the record store operations used by search and backfill.
// Every read path returns active programs only and never exposes embedding vectors.
type Store interface {
	// FindActiveMissingEmbedding returns active programs whose embedding is null
	FindActiveMissingEmbedding(ctx context.Context) ([]*types.Program, error)

	// UpdateEmbedding persists the embedding of a single program
	UpdateEmbedding(ctx context.Context, id string, vector []float32) error

	// SearchLexical returns active programs matching the predicate, ordered by
	// medication name then id. A limit <= 0 returns every match.
	SearchLexical(ctx context.Context, where Predicate, limit int) ([]*types.Program, error)

	// SearchBySimilarity returns active embedded programs with cosine similarity
	// >= minSimilarity, ordered by similarity descending then medication name.
	SearchBySimilarity(ctx context.Context, vector []float32, minSimilarity float64, limit int) ([]types.ScoredProgram, error)

	// GetPrograms loads programs by id regardless of their active flag. Unknown ids are skipped.
	GetPrograms(ctx context.Context, ids []string) ([]*types.Program, error)

	// GetStatus reports program and embedding counts
	GetStatus(ctx context.Context) (*Status, error)

	// Close releases the underlying connections
	Close() error
}

// ProgramWriter is implemented by stores that accept program upserts.
// Upserting a program whose embedded text changed clears its embedding.
type ProgramWriter interface {
	UpsertProgram(ctx context.Context, program *types.Program) error
}

// Status summarizes embedding coverage of the record store
type Status struct {
	Backend           string `json:"backend"`
	TotalPrograms     int    `json:"total_programs"`
	ActivePrograms    int    `json:"active_programs"`
	EmbeddedPrograms  int    `json:"embedded_programs"` // Active programs with an embedding
	MissingEmbeddings int    `json:"missing_embeddings"`
}

// Coverage returns the fraction of active programs holding an embedding
func (s *Status) Coverage() float64 {
	if s.ActivePrograms == 0 {
		return 1
	}
	return float64(s.EmbeddedPrograms) / float64(s.ActivePrograms)
}

// SortPrograms orders programs by medication name (case-insensitive), then id
func SortPrograms(programs []*types.Program) {
	sort.SliceStable(programs, func(i, j int) bool {
		return lessByName(programs[i], programs[j])
	})
}

// RankScored drops hits below minSimilarity, orders by similarity descending with
// medication name as tie-break and truncates to limit (limit <= 0 keeps all).
func RankScored(hits []types.ScoredProgram, minSimilarity float64, limit int) []types.ScoredProgram {
	ranked := make([]types.ScoredProgram, 0, len(hits))
	for _, h := range hits {
		if h.Program == nil || h.Similarity < minSimilarity {
			continue
		}
		ranked = append(ranked, h)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return lessByName(ranked[i].Program, ranked[j].Program)
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func lessByName(a, b *types.Program) bool {
	an, bn := strings.ToLower(a.MedicationName), strings.ToLower(b.MedicationName)
	if an != bn {
		return an < bn
	}
	return a.ID < b.ID
}

// ValidateVector rejects empty vectors and vectors containing NaN or Inf
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return ErrInvalidVector
		}
	}
	return nil
}
