// Package postgres implements the record store on PostgreSQL with pgvector.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

const programColumns = `id::text, medication_name, generic_name, manufacturer, program_name,
	program_description, eligibility_criteria, discount_amount, program_url,
	phone_number, enrollment_process, required_documents, active, created_at, updated_at`

// Store implements storage.Store on a pgx connection pool
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.Store         = (*Store)(nil)
	_ storage.ProgramWriter = (*Store)(nil)
)

// New connects to databaseURL and applies migrations
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool without running migrations
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanProgram(row pgx.Row, extra ...any) (*types.Program, error) {
	var p types.Program
	dest := []any{
		&p.ID, &p.MedicationName, &p.GenericName, &p.Manufacturer, &p.ProgramName,
		&p.ProgramDescription, &p.EligibilityCriteria, &p.DiscountAmount, &p.ProgramURL,
		&p.PhoneNumber, &p.EnrollmentProcess, &p.RequiredDocuments, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) queryPrograms(ctx context.Context, query string, args ...any) ([]*types.Program, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	programs := make([]*types.Program, 0)
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan program: %v", types.ErrStoreUnavailable, err)
		}
		programs = append(programs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return programs, nil
}

func (s *Store) FindActiveMissingEmbedding(ctx context.Context) ([]*types.Program, error) {
	return s.queryPrograms(ctx, `SELECT `+programColumns+` FROM programs WHERE active AND embedding IS NULL ORDER BY id`)
}

func (s *Store) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	if err := storage.ValidateVector(vector); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return storage.ErrNotFound
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE programs SET embedding = $1, embedded_at = $2 WHERE id = $3`,
		pgvector.NewVector(vector), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: failed to update embedding: %v", types.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SearchLexical(ctx context.Context, where storage.Predicate, limit int) ([]*types.Program, error) {
	query, args, err := lexicalQuery(where, limit)
	if err != nil {
		return nil, err
	}
	return s.queryPrograms(ctx, query, args...)
}

// lexicalQuery renders an active-only lexical query ordered by medication name
func lexicalQuery(where storage.Predicate, limit int) (string, []any, error) {
	clause, args, err := storage.RenderSQL(storage.ActiveOnly(where), storage.PostgresDialect, 1)
	if err != nil {
		return "", nil, err
	}
	query := `SELECT ` + programColumns + ` FROM programs WHERE ` + clause + ` ORDER BY lower(medication_name), id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}
	return query, args, nil
}

// similarityQuery calls match_programs, which filters to active programs and
// orders by similarity then medication name
func similarityQuery(vector []float32, minSimilarity float64, limit int) (string, []any) {
	if limit <= 0 {
		limit = 1000
	}
	return `SELECT id, medication_name, generic_name, manufacturer, program_name,
		program_description, eligibility_criteria, discount_amount, program_url,
		phone_number, enrollment_process, required_documents, active, created_at, updated_at, similarity
		FROM match_programs($1, $2, $3)`,
		[]any{pgvector.NewVector(vector), minSimilarity, limit}
}

func (s *Store) SearchBySimilarity(ctx context.Context, vector []float32, minSimilarity float64, limit int) ([]types.ScoredProgram, error) {
	if err := storage.ValidateVector(vector); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSimilarityUnavailable, err)
	}

	query, args := similarityQuery(vector, minSimilarity, limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSimilarityUnavailable, err)
	}
	defer rows.Close()

	results := make([]types.ScoredProgram, 0)
	for rows.Next() {
		var similarity float64
		p, err := scanProgram(rows, &similarity)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan result: %v", types.ErrSimilarityUnavailable, err)
		}
		results = append(results, types.ScoredProgram{Program: p, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSimilarityUnavailable, err)
	}
	return results, nil
}

func (s *Store) GetPrograms(ctx context.Context, ids []string) ([]*types.Program, error) {
	if len(ids) == 0 {
		return []*types.Program{}, nil
	}
	return s.queryPrograms(ctx, `SELECT `+programColumns+` FROM programs WHERE id::text = ANY($1)`, ids)
}

func (s *Store) GetStatus(ctx context.Context) (*storage.Status, error) {
	status := &storage.Status{Backend: "postgres"}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE active),
			COUNT(*) FILTER (WHERE active AND embedding IS NOT NULL)
		FROM programs`).Scan(&status.TotalPrograms, &status.ActivePrograms, &status.EmbeddedPrograms)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read status: %v", types.ErrStoreUnavailable, err)
	}
	status.MissingEmbeddings = status.ActivePrograms - status.EmbeddedPrograms
	return status, nil
}

// UpsertProgram inserts or updates a program. The embedding is cleared when any
// embedded text column changes.
func (s *Store) UpsertProgram(ctx context.Context, p *types.Program) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := p.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx, upsertSQL,
		p.ID, p.MedicationName, p.GenericName, p.Manufacturer, p.ProgramName,
		p.ProgramDescription, p.EligibilityCriteria, p.DiscountAmount, p.ProgramURL,
		p.PhoneNumber, p.EnrollmentProcess, p.RequiredDocuments, p.Active, now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: failed to upsert program: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO programs (id, medication_name, generic_name, manufacturer, program_name,
    program_description, eligibility_criteria, discount_amount, program_url,
    phone_number, enrollment_process, required_documents, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
ON CONFLICT (id) DO UPDATE SET
    medication_name = EXCLUDED.medication_name,
    generic_name = EXCLUDED.generic_name,
    manufacturer = EXCLUDED.manufacturer,
    program_name = EXCLUDED.program_name,
    program_description = EXCLUDED.program_description,
    eligibility_criteria = EXCLUDED.eligibility_criteria,
    discount_amount = EXCLUDED.discount_amount,
    program_url = EXCLUDED.program_url,
    phone_number = EXCLUDED.phone_number,
    enrollment_process = EXCLUDED.enrollment_process,
    required_documents = EXCLUDED.required_documents,
    active = EXCLUDED.active,
    updated_at = EXCLUDED.updated_at,
    embedding = CASE
        WHEN (programs.medication_name, programs.generic_name, programs.manufacturer,
              programs.program_name, programs.program_description, programs.eligibility_criteria)
             IS DISTINCT FROM
             (EXCLUDED.medication_name, EXCLUDED.generic_name, EXCLUDED.manufacturer,
              EXCLUDED.program_name, EXCLUDED.program_description, EXCLUDED.eligibility_criteria)
        THEN NULL ELSE programs.embedding END
RETURNING created_at, updated_at`
