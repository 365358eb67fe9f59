package backfill

import (
	"context"
	"errors"
	"time"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/logger"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// Scheduler reruns a Job on a fixed interval until its context ends
type Scheduler struct {
	job      *Job
	interval time.Duration
	log      *logger.Logger
}

func NewScheduler(job *Job, interval time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{job: job, interval: interval, log: log}
}

// Run executes the job immediately and then every interval. A non-positive
// interval disables scheduling. Run returns nil once ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	stats, err := s.job.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrBackfillInProgress):
		s.log.Info("scheduled backfill skipped, previous run still active")
	case errors.Is(err, types.ErrBackfillProviderDown):
		s.log.Warn("embedding provider down, retrying next interval",
			"succeeded", stats.Succeeded, "failed", stats.Failed, "next_run_in", s.interval)
	case ctx.Err() != nil:
	default:
		s.log.Error("scheduled backfill failed", "error", err)
	}
}
