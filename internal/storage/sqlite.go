package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// SQLiteStorage implements Store on a local SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

var (
	_ Store         = (*SQLiteStorage)(nil)
	_ ProgramWriter = (*SQLiteStorage)(nil)
)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single connection: one writer, and ":memory:" databases stay shared
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens the database at dbPath and applies migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const programColumns = `id, medication_name, generic_name, manufacturer, program_name,
	program_description, eligibility_criteria, discount_amount, program_url,
	phone_number, enrollment_process, required_documents, active, created_at, updated_at`

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanProgram reads programColumns plus any extra destinations
func scanProgram(row scanner, extra ...interface{}) (*types.Program, error) {
	var (
		p                                                                  types.Program
		generic, description, eligibility, discount, url, phone, enroll, docs sql.NullString
	)
	dest := []interface{}{
		&p.ID, &p.MedicationName, &generic, &p.Manufacturer, &p.ProgramName,
		&description, &eligibility, &discount, &url,
		&phone, &enroll, &docs, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	p.GenericName = nullableString(generic)
	p.ProgramDescription = nullableString(description)
	p.EligibilityCriteria = nullableString(eligibility)
	p.DiscountAmount = nullableString(discount)
	p.ProgramURL = nullableString(url)
	p.PhoneNumber = nullableString(phone)
	p.EnrollmentProcess = nullableString(enroll)
	p.RequiredDocuments = nullableString(docs)
	return &p, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func collectPrograms(rows *sql.Rows) ([]*types.Program, error) {
	defer func() { _ = rows.Close() }()

	programs := make([]*types.Program, 0)
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// Program writes

// UpsertProgram inserts or updates a program. A new program gets a UUID when ID is
// empty. The stored embedding is cleared when the embedded text changes.
func (s *SQLiteStorage) UpsertProgram(ctx context.Context, program *types.Program) error {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	if err := program.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.upsertProgramWithQuerier(ctx, tx, program); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) upsertProgramWithQuerier(ctx context.Context, q querier, program *types.Program) error {
	existing, err := scanProgram(q.QueryRowContext(ctx,
		"SELECT "+programColumns+" FROM programs WHERE id = ?", program.ID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to load program: %w", err)
	}

	now := time.Now().UTC()
	program.UpdatedAt = now

	if existing == nil {
		if program.CreatedAt.IsZero() {
			program.CreatedAt = now
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO programs (`+programColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			programArgs(program)...)
		if err != nil {
			return fmt.Errorf("failed to insert program: %w", err)
		}
		return nil
	}

	program.CreatedAt = existing.CreatedAt
	clearEmbedding := types.EmbeddingText(existing) != types.EmbeddingText(program)

	query := `
		UPDATE programs SET medication_name = ?, generic_name = ?, manufacturer = ?, program_name = ?,
			program_description = ?, eligibility_criteria = ?, discount_amount = ?, program_url = ?,
			phone_number = ?, enrollment_process = ?, required_documents = ?, active = ?, updated_at = ?`
	if clearEmbedding {
		query += ", embedding = NULL, embedding_dimension = NULL, embedded_at = NULL"
	}
	query += " WHERE id = ?"

	// programArgs without id and the two timestamps, then updated_at and the key
	args := programArgs(program)
	args = append(args[1:len(args)-2], now, program.ID)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update program: %w", err)
	}
	return nil
}

// programArgs returns values in programColumns order
func programArgs(p *types.Program) []interface{} {
	return []interface{}{
		p.ID, p.MedicationName, p.GenericName, p.Manufacturer, p.ProgramName,
		p.ProgramDescription, p.EligibilityCriteria, p.DiscountAmount, p.ProgramURL,
		p.PhoneNumber, p.EnrollmentProcess, p.RequiredDocuments, p.Active, p.CreatedAt, p.UpdatedAt,
	}
}

// ClearEmbedding removes the stored embedding of a program so the next backfill run re-embeds it
func (s *SQLiteStorage) ClearEmbedding(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE programs SET embedding = NULL, embedding_dimension = NULL, embedded_at = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: failed to clear embedding: %v", types.ErrStoreUnavailable, err)
	}
	return requireRow(res)
}

// Store operations

func (s *SQLiteStorage) FindActiveMissingEmbedding(ctx context.Context) ([]*types.Program, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+programColumns+`
		FROM programs
		WHERE active = 1 AND embedding IS NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query missing embeddings: %v", types.ErrStoreUnavailable, err)
	}
	programs, err := collectPrograms(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return programs, nil
}

func (s *SQLiteStorage) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	if err := ValidateVector(vector); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE programs SET embedding = ?, embedding_dimension = ?, embedded_at = ?
		WHERE id = ?`,
		serializeVector(vector), len(vector), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: failed to update embedding: %v", types.ErrStoreUnavailable, err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) SearchLexical(ctx context.Context, where Predicate, limit int) ([]*types.Program, error) {
	clause, args, err := RenderSQL(ActiveOnly(where), SQLiteDialect, 1)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + programColumns + " FROM programs WHERE " + clause +
		" ORDER BY " + FoldFunction + "(medication_name), id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: lexical search failed: %v", types.ErrStoreUnavailable, err)
	}
	programs, err := collectPrograms(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return programs, nil
}

func (s *SQLiteStorage) SearchBySimilarity(ctx context.Context, vector []float32, minSimilarity float64, limit int) ([]types.ScoredProgram, error) {
	if err := ValidateVector(vector); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSimilarityUnavailable, err)
	}
	results, err := searchSimilarity(ctx, s.db, vector, minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSimilarityUnavailable, err)
	}
	return results, nil
}

func (s *SQLiteStorage) GetPrograms(ctx context.Context, ids []string) ([]*types.Program, error) {
	if len(ids) == 0 {
		return []*types.Program{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+programColumns+" FROM programs WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load programs: %v", types.ErrStoreUnavailable, err)
	}
	programs, err := collectPrograms(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return programs, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{Backend: "sqlite/" + BuildMode}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN active = 1 AND embedding IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM programs`).Scan(&status.TotalPrograms, &status.ActivePrograms, &status.EmbeddedPrograms)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read status: %v", types.ErrStoreUnavailable, err)
	}

	status.MissingEmbeddings = status.ActivePrograms - status.EmbeddedPrograms
	return status, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
