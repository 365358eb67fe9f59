// Package storagetest provides an in-memory storage.Store for tests of
// packages that consume the record store.
package storagetest

import (
	"context"
	"math"
	"sync"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// Store keeps programs and embeddings in maps and counts every call.
// Set the *Err fields to inject failures.
type Store struct {
	mu         sync.Mutex
	programs   map[string]*types.Program
	embeddings map[string][]float32

	FindMissingErr error
	LexicalErr     error
	SimilarityErr  error
	StatusErr      error
	UpdateErr      func(id string) error // Per-item failure injection
	UpdateHook     func(id string)       // Called before each update is applied

	FindMissingCalls int
	UpdateCalls      int
	LexicalCalls     int
	SimilarityCalls  int
	Updated          []string
}

var _ storage.Store = (*Store)(nil)

func New(programs ...*types.Program) *Store {
	s := &Store{
		programs:   make(map[string]*types.Program),
		embeddings: make(map[string][]float32),
	}
	for _, p := range programs {
		s.Put(p, nil)
	}
	return s
}

// Put inserts or replaces a program and its embedding (nil for none)
func (s *Store) Put(p *types.Program, embedding []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.programs[p.ID] = &cp
	if embedding == nil {
		delete(s.embeddings, p.ID)
	} else {
		s.embeddings[p.ID] = append([]float32(nil), embedding...)
	}
}

// Embedding returns the stored vector of a program
func (s *Store) Embedding(id string) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.embeddings[id]
	return v, ok
}

func (s *Store) Calls() (findMissing, update, lexical, similarity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FindMissingCalls, s.UpdateCalls, s.LexicalCalls, s.SimilarityCalls
}

func (s *Store) FindActiveMissingEmbedding(ctx context.Context) ([]*types.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FindMissingCalls++
	if s.FindMissingErr != nil {
		return nil, s.FindMissingErr
	}

	var out []*types.Program
	for id, p := range s.programs {
		if _, ok := s.embeddings[id]; !ok && p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	storage.SortPrograms(out)
	return out, nil
}

func (s *Store) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	s.mu.Lock()
	s.UpdateCalls++
	hook, failFn := s.UpdateHook, s.UpdateErr
	s.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if failFn != nil {
		if err := failFn(id); err != nil {
			return err
		}
	}
	if err := storage.ValidateVector(vector); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.programs[id]; !ok {
		return storage.ErrNotFound
	}
	s.embeddings[id] = append([]float32(nil), vector...)
	s.Updated = append(s.Updated, id)
	return nil
}

func (s *Store) SearchLexical(ctx context.Context, where storage.Predicate, limit int) ([]*types.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LexicalCalls++
	if s.LexicalErr != nil {
		return nil, s.LexicalErr
	}
	if err := storage.ValidatePredicate(where); err != nil {
		return nil, err
	}

	var out []*types.Program
	for id, p := range s.programs {
		_, embedded := s.embeddings[id]
		if storage.Match(storage.ActiveOnly(where), p, embedded) {
			cp := *p
			out = append(out, &cp)
		}
	}
	storage.SortPrograms(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SearchBySimilarity(ctx context.Context, vector []float32, minSimilarity float64, limit int) ([]types.ScoredProgram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SimilarityCalls++
	if s.SimilarityErr != nil {
		return nil, s.SimilarityErr
	}

	var hits []types.ScoredProgram
	for id, emb := range s.embeddings {
		p := s.programs[id]
		if p == nil || !p.Active || len(emb) != len(vector) {
			continue
		}
		cp := *p
		hits = append(hits, types.ScoredProgram{Program: &cp, Similarity: cosine(vector, emb)})
	}
	return storage.RankScored(hits, minSimilarity, limit), nil
}

func (s *Store) GetPrograms(ctx context.Context, ids []string) ([]*types.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Program
	for _, id := range ids {
		if p, ok := s.programs[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetStatus(ctx context.Context) (*storage.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StatusErr != nil {
		return nil, s.StatusErr
	}

	st := &storage.Status{Backend: "memory", TotalPrograms: len(s.programs)}
	for id, p := range s.programs {
		if !p.Active {
			continue
		}
		st.ActivePrograms++
		if _, ok := s.embeddings[id]; ok {
			st.EmbeddedPrograms++
		}
	}
	st.MissingEmbeddings = st.ActivePrograms - st.EmbeddedPrograms
	return st, nil
}

func (s *Store) Close() error {
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
