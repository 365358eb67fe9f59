// Package backfill computes embeddings for active programs that lack one.
//
// A Job makes one pass over the store. Items run on a bounded worker pool and
// fail independently: a provider error or store write error for one program is
// recorded and the rest continue. Programs embedded by an earlier pass are not
// candidates, so repeated runs converge and an idle run embeds nothing.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/config"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/embedder"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/logger"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// Stats summarizes one run
type Stats struct {
	Candidates   int           `json:"candidates"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`       // Programs with no embeddable text
	NotAttempted int           `json:"not_attempted"` // Left for the next run after an early stop
	Aborted      bool          `json:"aborted"`
	Duration     time.Duration `json:"duration_ns"`

	Failures []*types.BackfillItemError `json:"-"`
}

// FailureMessages renders per-item failures as "id: error"
func (s *Stats) FailureMessages() []string {
	out := make([]string, len(s.Failures))
	for i, f := range s.Failures {
		out[i] = f.Error()
	}
	return out
}

// Job embeds active programs missing an embedding
type Job struct {
	store    storage.Store
	embedder embedder.Embedder
	log      *logger.Logger

	workers               int
	itemTimeout           time.Duration
	providerDownThreshold int

	lock RunLock
}

// Option configures a Job
type Option func(*Job)

func WithLogger(l *logger.Logger) Option {
	return func(j *Job) { j.log = l }
}

// WithWorkers bounds concurrent provider calls; values are clamped to 1..8
func WithWorkers(n int) Option {
	return func(j *Job) { j.workers = n }
}

func WithItemTimeout(d time.Duration) Option {
	return func(j *Job) { j.itemTimeout = d }
}

// WithProviderDownThreshold stops a run after n consecutive provider failures
func WithProviderDownThreshold(n int) Option {
	return func(j *Job) { j.providerDownThreshold = n }
}

// WithConfig applies every backfill setting from cfg
func WithConfig(cfg config.BackfillConfig) Option {
	return func(j *Job) {
		j.workers = cfg.Workers
		j.itemTimeout = cfg.ItemTimeout
		j.providerDownThreshold = cfg.ProviderDownThreshold
	}
}

func NewJob(store storage.Store, emb embedder.Embedder, opts ...Option) *Job {
	j := &Job{
		store:                 store,
		embedder:              emb,
		log:                   logger.Nop(),
		workers:               config.DefaultBackfillWorkers,
		itemTimeout:           config.DefaultItemTimeout,
		providerDownThreshold: config.DefaultProviderDownThreshold,
	}
	for _, opt := range opts {
		opt(j)
	}

	j.workers = min(max(j.workers, 1), config.MaxBackfillWorkers)
	if j.providerDownThreshold < 1 {
		j.providerDownThreshold = config.DefaultProviderDownThreshold
	}
	return j
}

// Running reports whether a run is in progress
func (j *Job) Running() bool {
	return j.lock.Running()
}

// run holds the mutable state of one pass
type run struct {
	mu                  sync.Mutex
	stats               *Stats
	consecutiveFailures int
	providerDown        bool
	cancelled           int // Submitted but not started because ctx ended
}

func (r *run) succeed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Succeeded++
	r.consecutiveFailures = 0
}

func (r *run) fail(err *types.BackfillItemError, providerFailure bool, threshold int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Failed++
	r.stats.Failures = append(r.stats.Failures, err)
	if providerFailure {
		r.consecutiveFailures++
		if r.consecutiveFailures >= threshold {
			r.providerDown = true
		}
	}
}

func (r *run) isProviderDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.providerDown
}

// Run makes one pass. It returns types.ErrBackfillInProgress when another run
// holds the lock, and types.ErrBackfillProviderDown (with partial stats) when
// the provider failed repeatedly. When ctx is cancelled no new items start,
// in-flight items finish, and the stats are returned with ctx.Err().
func (j *Job) Run(ctx context.Context) (*Stats, error) {
	if !j.lock.TryAcquire() {
		return nil, types.ErrBackfillInProgress
	}
	defer j.lock.Release()

	start := time.Now()
	candidates, err := j.store.FindActiveMissingEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs missing embeddings: %w", err)
	}
	candidates = dedupe(candidates)

	r := &run{stats: &Stats{Candidates: len(candidates)}}
	j.log.Info("backfill started", "candidates", len(candidates), "workers", j.workers)

	pool, err := ants.NewPool(j.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	attempted := 0
	for _, p := range candidates {
		if ctx.Err() != nil || r.isProviderDown() {
			break
		}
		attempted++

		text := types.EmbeddingText(p)
		if text == "" {
			r.mu.Lock()
			r.stats.Skipped++
			r.mu.Unlock()
			j.log.Warn("skipping program with no embeddable text", "program_id", p.ID)
			continue
		}

		wg.Add(1)
		program := p
		if err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				r.mu.Lock()
				r.cancelled++
				r.mu.Unlock()
				return
			}
			j.process(ctx, r, program, text)
		}); err != nil {
			wg.Done()
			r.fail(&types.BackfillItemError{ProgramID: program.ID, Err: err}, false, j.providerDownThreshold)
		}
	}
	wg.Wait()

	stats := r.stats
	stats.NotAttempted = len(candidates) - attempted + r.cancelled
	stats.Duration = time.Since(start)
	stats.Aborted = stats.NotAttempted > 0

	j.log.Info("backfill finished",
		"total", stats.Candidates,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"not_attempted", stats.NotAttempted,
		"duration", stats.Duration)

	switch {
	case r.providerDown:
		return stats, fmt.Errorf("%w: %d consecutive provider failures", types.ErrBackfillProviderDown, j.providerDownThreshold)
	case ctx.Err() != nil && stats.Aborted:
		return stats, ctx.Err()
	}
	return stats, nil
}

// process embeds and persists one program. In-flight work is detached from
// ctx cancellation and bounded by the item timeout instead.
func (j *Job) process(ctx context.Context, r *run, p *types.Program, text string) {
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.itemTimeout)
	defer cancel()

	emb, err := j.embedder.GenerateEmbedding(itemCtx, embedder.EmbeddingRequest{Text: text})
	if err == nil {
		err = storage.ValidateVector(emb.Vector)
	}
	if err != nil {
		itemErr := &types.BackfillItemError{ProgramID: p.ID, Err: fmt.Errorf("%w: %v", types.ErrProviderUnavailable, err)}
		r.fail(itemErr, true, j.providerDownThreshold)
		j.log.Warn("embedding failed", "program_id", p.ID, "error", err)
		return
	}

	if err := j.store.UpdateEmbedding(itemCtx, p.ID, embedder.NormalizeVector(emb.Vector)); err != nil {
		r.fail(&types.BackfillItemError{ProgramID: p.ID, Err: err}, false, j.providerDownThreshold)
		level := j.log.Warn
		if errors.Is(err, storage.ErrNotFound) {
			level = j.log.Debug
		}
		level("failed to persist embedding", "program_id", p.ID, "error", err)
		return
	}

	r.succeed()
	j.log.Debug("embedded program", "program_id", p.ID, "dimension", len(emb.Vector))
}

func dedupe(programs []*types.Program) []*types.Program {
	seen := make(map[string]struct{}, len(programs))
	out := programs[:0:0]
	for _, p := range programs {
		if p == nil {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
