package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// searchSimilarity ranks active embedded programs by cosine similarity to vector
func searchSimilarity(ctx context.Context, db *sql.DB, vector []float32, minSimilarity float64, limit int) ([]types.ScoredProgram, error) {
	// Use SQL-side distance when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchSimilarityOptimized(ctx, db, vector, minSimilarity, limit)
	}
	return searchSimilarityFallback(ctx, db, vector, minSimilarity, limit)
}

// searchSimilarityOptimized computes similarity with the sqlite-vec extension.
// vec_distance_cosine returns a distance, so similarity is 1 - distance.
func searchSimilarityOptimized(ctx context.Context, db *sql.DB, vector []float32, minSimilarity float64, limit int) ([]types.ScoredProgram, error) {
	blob := serializeVector(vector)

	query := `
		SELECT ` + programColumns + `, 1.0 - vec_distance_cosine(embedding, ?) AS similarity
		FROM programs
		WHERE active = 1 AND embedding IS NOT NULL AND embedding_dimension = ?
		AND (1.0 - vec_distance_cosine(embedding, ?)) >= ?
		ORDER BY similarity DESC, fold(medication_name), id`
	args := []interface{}{blob, len(vector), blob, minSimilarity}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ScoredProgram, 0)
	for rows.Next() {
		var similarity float64
		p, err := scanProgram(rows, &similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, types.ScoredProgram{Program: p, Similarity: similarity})
	}
	return results, rows.Err()
}

// searchSimilarityFallback loads active embeddings and computes cosine similarity in Go.
// Used by purego builds without sqlite-vec.
func searchSimilarityFallback(ctx context.Context, db *sql.DB, vector []float32, minSimilarity float64, limit int) ([]types.ScoredProgram, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+programColumns+`, embedding
		FROM programs
		WHERE active = 1 AND embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		hits       []types.ScoredProgram
		candidates int
		mismatched int
	)
	for rows.Next() {
		var blob []byte
		p, err := scanProgram(rows, &blob)
		if err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		candidates++

		stored := deserializeVector(blob)
		if len(stored) != len(vector) {
			mismatched++
			continue
		}
		hits = append(hits, types.ScoredProgram{Program: p, Similarity: cosineSimilarity(vector, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Every stored vector has another dimension: the query came from a different model
	if candidates > 0 && mismatched == candidates {
		return nil, fmt.Errorf("query dimension %d matches no stored embedding", len(vector))
	}

	return RankScored(hits, minSimilarity, limit), nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineSimilarity is exported for stores that rank in memory
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
