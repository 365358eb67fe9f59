// Package qdrant mirrors program embeddings into a Qdrant collection and serves
// similarity search from it. Every other operation is delegated to a base store,
// which stays the source of truth for program data and the active flag.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

const (
	payloadProgramID = "program_id"
	payloadActive    = "active"
	payloadName      = "medication_name"

	// overFetch compensates for hits dropped during re-hydration
	overFetch = 2
)

// pointNamespace derives stable point ids for program ids that are not UUIDs
var pointNamespace = uuid.MustParse("5d1a6c4e-8f0b-4b7e-9c55-2f4f0c1de7a3")

// Config holds Qdrant connection configuration
type Config struct {
	// URL is the Qdrant gRPC address (e.g., "https://example.qdrant.io:6334")
	URL        string
	APIKey     string
	Collection string
}

// Store decorates a base store with a Qdrant similarity index
type Store struct {
	storage.Store

	client     *qdrant.Client
	collection string

	mu    sync.Mutex
	ready bool
}

var _ storage.Store = (*Store)(nil)

// New connects to Qdrant and wraps base
func New(base storage.Store, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}

	host, port, useTLS, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Store{Store: base, client: client, collection: cfg.Collection}, nil
}

// parseURL extracts host, port and TLS mode; the gRPC port defaults to 6334
func parseURL(raw string) (string, int, bool, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to parse qdrant url: %w", err)
	}
	if u.Hostname() == "" {
		return "", 0, false, fmt.Errorf("qdrant url has no host")
	}

	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port: %w", err)
		}
		port = p
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}

// ensureCollection creates the collection on first use with the vector's dimension
func (s *Store) ensureCollection(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

// UpdateEmbedding writes the point to Qdrant before persisting to the base store,
// so a mirror failure leaves the program unembedded and the next backfill retries it
func (s *Store) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	if err := storage.ValidateVector(vector); err != nil {
		return err
	}

	programs, err := s.Store.GetPrograms(ctx, []string{id})
	if err != nil {
		return err
	}
	if len(programs) == 0 {
		return storage.ErrNotFound
	}

	if err := s.ensureCollection(ctx, len(vector)); err != nil {
		return fmt.Errorf("%w: qdrant collection: %v", types.ErrStoreUnavailable, err)
	}

	wait := true
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         []*qdrant.PointStruct{buildPoint(programs[0], vector)},
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant upsert: %v", types.ErrStoreUnavailable, err)
	}

	return s.Store.UpdateEmbedding(ctx, id, vector)
}

// SearchBySimilarity queries Qdrant, then re-hydrates hits from the base store and
// drops programs that are no longer active or whose embedding has been cleared
func (s *Store) SearchBySimilarity(ctx context.Context, vector []float32, minSimilarity float64, limit int) ([]types.ScoredProgram, error) {
	if err := storage.ValidateVector(vector); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSimilarityUnavailable, err)
	}

	points, err := s.client.Query(ctx, buildQuery(s.collection, vector, minSimilarity, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant search failed: %v", types.ErrSimilarityUnavailable, err)
	}

	scores := make(map[string]float64, len(points))
	ids := make([]string, 0, len(points))
	for _, point := range points {
		id := point.GetPayload()[payloadProgramID].GetStringValue()
		if id == "" {
			continue
		}
		if _, seen := scores[id]; !seen {
			ids = append(ids, id)
		}
		scores[id] = float64(point.GetScore())
	}

	programs, err := s.embeddedPrograms(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSimilarityUnavailable, err)
	}
	return hydrate(scores, programs, minSimilarity, limit), nil
}

// embeddedPrograms loads the active programs among ids that still hold an
// embedding in the base store. Points left behind after an upsert cleared the
// embedding are dropped here until the next backfill rewrites them.
func (s *Store) embeddedPrograms(ctx context.Context, ids []string) ([]*types.Program, error) {
	if len(ids) == 0 {
		return []*types.Program{}, nil
	}
	members := make([]storage.Predicate, len(ids))
	for i, id := range ids {
		members[i] = storage.Eq(storage.FieldID, id)
	}
	return s.Store.SearchLexical(ctx, storage.And(storage.Or(members...), storage.NotNull(storage.FieldEmbedding)), 0)
}

func (s *Store) Close() error {
	qerr := s.client.Close()
	if err := s.Store.Close(); err != nil {
		return err
	}
	return qerr
}

func (s *Store) GetStatus(ctx context.Context) (*storage.Status, error) {
	status, err := s.Store.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	status.Backend += "+qdrant"
	return status, nil
}

// pointID maps a program id to a Qdrant point id
func pointID(programID string) string {
	if u, err := uuid.Parse(programID); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(programID)).String()
}

func buildPoint(p *types.Program, vector []float32) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(pointID(p.ID)),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadProgramID: p.ID,
			payloadActive:    p.Active,
			payloadName:      p.MedicationName,
		}),
	}
}

func buildQuery(collection string, vector []float32, minSimilarity float64, limit int) *qdrant.QueryPoints {
	fetch := uint64(limit * overFetch)
	if limit <= 0 {
		fetch = 1000
	}
	threshold := float32(minSimilarity)
	return &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &fetch,
		ScoreThreshold: &threshold,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchBool(payloadActive, true)},
		},
		WithPayload: qdrant.NewWithPayload(true),
	}
}

// hydrate pairs scores with current program rows, keeping active programs only
func hydrate(scores map[string]float64, programs []*types.Program, minSimilarity float64, limit int) []types.ScoredProgram {
	hits := make([]types.ScoredProgram, 0, len(programs))
	for _, p := range programs {
		score, ok := scores[p.ID]
		if !ok || !p.Active {
			continue
		}
		hits = append(hits, types.ScoredProgram{Program: p, Similarity: score})
	}
	return storage.RankScored(hits, minSimilarity, limit)
}
