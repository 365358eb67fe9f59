// Package supabase implements the record store over the Supabase REST API.
//
// Lexical filters are sent as PostgREST query parameters and similarity search
// calls the match_programs SQL function (created by the postgres migrations)
// through RPC.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

const (
	programsTable = "programs"
	matchFunction = "match_programs"

	programColumns = "id,medication_name,generic_name,manufacturer,program_name," +
		"program_description,eligibility_criteria,discount_amount,program_url," +
		"phone_number,enrollment_process,required_documents,active,created_at,updated_at"

	// maxMatchCount bounds RPC results when no limit is requested
	maxMatchCount = 1000
)

// Store implements storage.Store on a Supabase project
type Store struct {
	client *supa.Client
}

var _ storage.Store = (*Store)(nil)

// New creates a store for the Supabase project at url
func New(url, key string) (*Store, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return nil
}

// programRow is the JSON shape of a programs row
type programRow struct {
	ID                  string    `json:"id"`
	MedicationName      string    `json:"medication_name"`
	GenericName         *string   `json:"generic_name"`
	Manufacturer        string    `json:"manufacturer"`
	ProgramName         string    `json:"program_name"`
	ProgramDescription  *string   `json:"program_description"`
	EligibilityCriteria *string   `json:"eligibility_criteria"`
	DiscountAmount      *string   `json:"discount_amount"`
	ProgramURL          *string   `json:"program_url"`
	PhoneNumber         *string   `json:"phone_number"`
	EnrollmentProcess   *string   `json:"enrollment_process"`
	RequiredDocuments   *string   `json:"required_documents"`
	Active              bool      `json:"active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	Similarity          *float64  `json:"similarity,omitempty"`
}

func (r programRow) program() *types.Program {
	return &types.Program{
		ID:                  r.ID,
		MedicationName:      r.MedicationName,
		GenericName:         r.GenericName,
		Manufacturer:        r.Manufacturer,
		ProgramName:         r.ProgramName,
		ProgramDescription:  r.ProgramDescription,
		EligibilityCriteria: r.EligibilityCriteria,
		DiscountAmount:      r.DiscountAmount,
		ProgramURL:          r.ProgramURL,
		PhoneNumber:         r.PhoneNumber,
		EnrollmentProcess:   r.EnrollmentProcess,
		RequiredDocuments:   r.RequiredDocuments,
		Active:              r.Active,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func toPrograms(rows []programRow) []*types.Program {
	programs := make([]*types.Program, len(rows))
	for i, r := range rows {
		programs[i] = r.program()
	}
	return programs
}

func (s *Store) selectPrograms() *postgrest.FilterBuilder {
	return s.client.From(programsTable).Select(programColumns, "", false)
}

// call runs a blocking client request and gives up when ctx ends. The REST
// client takes no context, so an abandoned request finishes in the background
// and its result is discarded. A request that completes after the deadline
// still reports the deadline.
func call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) FindActiveMissingEmbedding(ctx context.Context) ([]*types.Program, error) {
	var rows []programRow
	err := call(ctx, func() error {
		_, err := s.selectPrograms().
			Eq("active", "true").
			Is("embedding", "null").
			Order("id", &postgrest.OrderOpts{Ascending: true}).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}
	return toPrograms(rows), nil
}

func (s *Store) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	if err := storage.ValidateVector(vector); err != nil {
		return err
	}

	update := map[string]any{
		"embedding":   vectorLiteral(vector),
		"embedded_at": time.Now().UTC(),
	}
	var updated []struct {
		ID string `json:"id"`
	}
	err := call(ctx, func() error {
		_, err := s.client.From(programsTable).
			Update(update, "representation", "").
			Eq("id", id).
			ExecuteTo(&updated)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: failed to update embedding: %w", types.ErrStoreUnavailable, err)
	}
	if len(updated) == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SearchLexical(ctx context.Context, where storage.Predicate, limit int) ([]*types.Program, error) {
	f, err := applyPredicate(s.selectPrograms(), storage.ActiveOnly(where))
	if err != nil {
		return nil, err
	}

	var rows []programRow
	err = call(ctx, func() error {
		_, err := f.Order("medication_name", &postgrest.OrderOpts{Ascending: true}).ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: lexical search failed: %w", types.ErrStoreUnavailable, err)
	}

	// PostgREST orders case-sensitively; reorder and truncate locally
	programs := toPrograms(rows)
	storage.SortPrograms(programs)
	if limit > 0 && len(programs) > limit {
		programs = programs[:limit]
	}
	return programs, nil
}

func (s *Store) SearchBySimilarity(ctx context.Context, vector []float32, minSimilarity float64, limit int) ([]types.ScoredProgram, error) {
	if err := storage.ValidateVector(vector); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSimilarityUnavailable, err)
	}

	count := limit
	if count <= 0 {
		count = maxMatchCount
	}
	params := map[string]any{
		"query_embedding": vectorLiteral(vector),
		"match_threshold": minSimilarity,
		"match_count":     count,
	}

	var rows []programRow
	err := call(ctx, func() error {
		var err error
		rows, err = decodeRPC(s.client.Rpc(matchFunction, "", params))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSimilarityUnavailable, err)
	}

	results := make([]types.ScoredProgram, 0, len(rows))
	for _, r := range rows {
		if r.Similarity == nil {
			continue
		}
		results = append(results, types.ScoredProgram{Program: r.program(), Similarity: *r.Similarity})
	}
	return storage.RankScored(results, minSimilarity, limit), nil
}

// rpcError is the PostgREST error body
type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
}

// decodeRPC parses an RPC response, which is either a row array or an error object
func decodeRPC(body string) ([]programRow, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("empty rpc response")
	}
	if strings.HasPrefix(body, "{") {
		var e rpcError
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("decode rpc error: %w", err)
		}
		return nil, fmt.Errorf("rpc %s failed: %s %s", matchFunction, e.Code, e.Message)
	}

	var rows []programRow
	if err := json.Unmarshal([]byte(body), &rows); err != nil {
		return nil, fmt.Errorf("decode rpc rows: %w", err)
	}
	return rows, nil
}

func (s *Store) GetPrograms(ctx context.Context, ids []string) ([]*types.Program, error) {
	if len(ids) == 0 {
		return []*types.Program{}, nil
	}
	var rows []programRow
	err := call(ctx, func() error {
		_, err := s.selectPrograms().In("id", ids).ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load programs: %w", types.ErrStoreUnavailable, err)
	}
	return toPrograms(rows), nil
}

func (s *Store) GetStatus(ctx context.Context) (*storage.Status, error) {
	count := func(filter func(*postgrest.FilterBuilder) *postgrest.FilterBuilder) (int, error) {
		f := s.client.From(programsTable).Select("id", "exact", true)
		_, n, err := filter(f).Execute()
		return int(n), err
	}

	var total, active, embedded int
	err := call(ctx, func() error {
		var err error
		if total, err = count(func(f *postgrest.FilterBuilder) *postgrest.FilterBuilder { return f }); err != nil {
			return err
		}
		if active, err = count(func(f *postgrest.FilterBuilder) *postgrest.FilterBuilder { return f.Eq("active", "true") }); err != nil {
			return err
		}
		embedded, err = count(func(f *postgrest.FilterBuilder) *postgrest.FilterBuilder {
			return f.Eq("active", "true").Not("embedding", "is", "null")
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}

	return &storage.Status{
		Backend:           "supabase",
		TotalPrograms:     total,
		ActivePrograms:    active,
		EmbeddedPrograms:  embedded,
		MissingEmbeddings: active - embedded,
	}, nil
}

// vectorLiteral renders a vector in pgvector text form, e.g. "[0.1,0.2]"
func vectorLiteral(vector []float32) string {
	v, _ := pgvector.NewVector(vector).Value()
	s, _ := v.(string)
	return s
}
