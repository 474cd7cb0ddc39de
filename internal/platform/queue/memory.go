package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MemoryQueue is an in-process transport for tests and broker-less
// development. In eager mode Enqueue runs the handler inline, retrying in
// place, which mirrors running the broker in always-eager mode.
type MemoryQueue struct {
	logger zerolog.Logger
	opts   Options
	eager  bool

	mu     sync.Mutex
	reg    *Registry
	queues map[string]chan *Job
	dead   []*Job
	wg     sync.WaitGroup
}

func NewMemory(logger zerolog.Logger, opts Options) *MemoryQueue {
	return &MemoryQueue{
		logger: logger,
		opts:   opts.withDefaults(),
		queues: make(map[string]chan *Job),
	}
}

// NewEager returns a memory transport that executes jobs synchronously
// against reg at enqueue time.
func NewEager(logger zerolog.Logger, opts Options, reg *Registry) *MemoryQueue {
	q := NewMemory(logger, opts)
	q.eager = true
	q.reg = reg
	return q
}

func (q *MemoryQueue) chanFor(jobType string) chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.queues[jobType]
	if !ok {
		ch = make(chan *Job, 1024)
		q.queues[jobType] = ch
	}
	return ch
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobType string, args map[string]any) (*EnqueueResult, error) {
	job := NewJob(jobType, args, q.opts.MaxRetries)
	if q.eager {
		q.runInline(ctx, job)
		return &EnqueueResult{JobID: job.ID, Stream: "eager"}, nil
	}
	select {
	case q.chanFor(jobType) <- job:
		return &EnqueueResult{JobID: job.ID, Stream: "memory:" + jobType}, nil
	default:
		return nil, fmt.Errorf("enqueue %s: queue full", jobType)
	}
}

func (q *MemoryQueue) runInline(ctx context.Context, job *Job) {
	h, ok := q.reg.Handler(job.Type)
	if !ok {
		q.logger.Error().Str("job_type", job.Type).Msg("no handler registered, job dead-lettered")
		q.recordDead(job)
		return
	}
	for {
		err := h(ctx, job)
		switch classify(job, err) {
		case verdictDone:
			return
		case verdictRetry:
			job.Attempt++
		case verdictDead:
			q.logger.Error().Err(err).Str("job_type", job.Type).Str("job_id", job.ID).
				Msg("job dead-lettered")
			q.recordDead(job)
			return
		}
	}
}

// Run consumes all registered job types until ctx is cancelled.
func (q *MemoryQueue) Run(ctx context.Context, reg *Registry) error {
	q.mu.Lock()
	q.reg = reg
	q.mu.Unlock()

	for _, jobType := range reg.Types() {
		handler, _ := reg.Handler(jobType)
		ch := q.chanFor(jobType)
		for i := 0; i < q.opts.Concurrency; i++ {
			q.wg.Add(1)
			go func(h Handler, ch chan *Job) {
				defer q.wg.Done()
				q.consume(ctx, h, ch)
			}(handler, ch)
		}
	}
	q.wg.Wait()
	return nil
}

func (q *MemoryQueue) consume(ctx context.Context, h Handler, ch chan *Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-ch:
			attemptCtx, cancel := context.WithTimeout(ctx, q.opts.AttemptTimeout)
			err := h(attemptCtx, job)
			cancel()

			switch classify(job, err) {
			case verdictDone:
			case verdictRetry:
				job.Attempt++
				delay := Backoff(job.Attempt, q.opts.BackoffBase, q.opts.BackoffMax)
				q.logger.Warn().Err(err).Str("job_type", job.Type).Str("job_id", job.ID).
					Int("attempt", job.Attempt).Dur("delay", delay).Msg("job retry scheduled")
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				select {
				case ch <- job:
				default:
					q.logger.Error().Str("job_id", job.ID).Msg("requeue failed, queue full")
					q.recordDead(job)
				}
			case verdictDead:
				q.logger.Error().Err(err).Str("job_type", job.Type).Str("job_id", job.ID).
					Int("attempt", job.Attempt).Msg("job dead-lettered")
				q.recordDead(job)
			}
		}
	}
}

func (q *MemoryQueue) recordDead(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, job)
}

// Dead returns a snapshot of dead-lettered jobs.
func (q *MemoryQueue) Dead() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.dead))
	copy(out, q.dead)
	return out
}
