package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CurrentSchemaVersion tracks the Postgres schema version
const CurrentSchemaVersion = "1.0.0"

type migration struct {
	Version string
	Up      string
}

var migrations = []migration{
	{Version: "1.0.0", Up: schemaV1},
}

// schemaV1 creates the programs table and the match_programs function.
// The function is also what the Supabase store calls over RPC.
const schemaV1 = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS programs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    medication_name TEXT NOT NULL,
    generic_name TEXT,
    manufacturer TEXT NOT NULL,
    program_name TEXT NOT NULL,
    program_description TEXT,
    eligibility_criteria TEXT,
    discount_amount TEXT,
    program_url TEXT,
    phone_number TEXT,
    enrollment_process TEXT,
    required_documents TEXT,
    active BOOLEAN NOT NULL DEFAULT true,
    embedding vector,
    embedded_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_programs_active_name ON programs (active, lower(medication_name));
CREATE INDEX IF NOT EXISTS idx_programs_missing_embedding ON programs (id) WHERE active AND embedding IS NULL;

CREATE OR REPLACE FUNCTION match_programs(query_embedding vector, match_threshold float8, match_count int)
RETURNS TABLE (
    id TEXT,
    medication_name TEXT,
    generic_name TEXT,
    manufacturer TEXT,
    program_name TEXT,
    program_description TEXT,
    eligibility_criteria TEXT,
    discount_amount TEXT,
    program_url TEXT,
    phone_number TEXT,
    enrollment_process TEXT,
    required_documents TEXT,
    active BOOLEAN,
    created_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ,
    similarity float8
)
LANGUAGE sql STABLE
AS $$
    SELECT p.id::text, p.medication_name, p.generic_name, p.manufacturer, p.program_name,
        p.program_description, p.eligibility_criteria, p.discount_amount, p.program_url,
        p.phone_number, p.enrollment_process, p.required_documents, p.active,
        p.created_at, p.updated_at,
        1 - (p.embedding <=> query_embedding) AS similarity
    FROM programs p
    WHERE p.active
      AND p.embedding IS NOT NULL
      AND vector_dims(p.embedding) = vector_dims(query_embedding)
      AND 1 - (p.embedding <=> query_embedding) >= match_threshold
    ORDER BY similarity DESC, lower(p.medication_name), p.id
    LIMIT match_count;
$$;
`

// Migrate applies pending schema migrations
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	current := semver.MustParse("0.0.0")
	rows, err := pool.Query(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return fmt.Errorf("failed to read schema_version: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to read schema_version: %w", err)
	}
	for _, raw := range versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			return fmt.Errorf("invalid schema version %s: %w", raw, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}

	for _, m := range migrations {
		version, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(version) {
			continue
		}
		if err := applyMigration(ctx, pool, m); err != nil {
			return err
		}
		current = version
	}
	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, m migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, m.Up); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", m.Version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
	}
	if err := tx.Commit(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
