package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const defaultScheduleInterval = 15 * time.Minute

// Scheduler enqueues recurring batch jobs on a fixed cadence. The sweeps it
// drives are re-runnable and every write they perform is idempotent, so an
// overlapping round from a second scheduler instance converges on the same
// state.
type Scheduler struct {
	enq      Enqueuer
	interval time.Duration
	types    []string
	log      zerolog.Logger
}

func NewScheduler(enq Enqueuer, interval time.Duration, types []string, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultScheduleInterval
	}
	return &Scheduler{enq: enq, interval: interval, types: types, log: log}
}

// Run fires one round immediately, then one per interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.fire(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	for _, jobType := range s.types {
		res, err := s.enq.Enqueue(ctx, jobType, nil)
		if err != nil {
			s.log.Error().Err(err).Str("job_type", jobType).Msg("scheduled enqueue failed")
			continue
		}
		s.log.Debug().Str("job_type", jobType).Str("job_id", res.JobID).Msg("scheduled job enqueued")
	}
}
