// Package queue implements the durable job transport between API handlers and
// workflow workers. Delivery is at-least-once: handlers must tolerate
// redelivery and concurrent jobs for the same entity id.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Well-known job types. Consumers register exactly one handler per type.
const (
	TypeClaimSubmit       = "claims.submit"
	TypeRemitIngest       = "remits.ingest"
	TypeEligibilityCheck  = "eligibility.check"
	TypeComplianceExport  = "compliance.export"
	TypeCompliancePIAPack = "compliance.pia_pack"
	TypeComplianceErasure = "compliance.erasure"
	TypeComplianceAnomaly = "compliance.anomaly_scan"
	TypeReminderSweep     = "pros.reminder_sweep"
	TypeEscalationSweep   = "pros.escalation_sweep"
	TypeAssignVariant     = "analytics.assign_variant"
)

// Job is the wire unit of work. Args values survive a JSON round trip, so
// numeric arguments arrive as float64; use the accessor helpers.
type Job struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Args       map[string]any `json:"args"`
	Attempt    int            `json:"attempt"`
	MaxRetries int            `json:"max_retries"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// NewJob builds a job with a fresh id and zero attempts.
func NewJob(jobType string, args map[string]any, maxRetries int) *Job {
	if args == nil {
		args = map[string]any{}
	}
	return &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Args:       args,
		MaxRetries: maxRetries,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Int64 reads a numeric argument, accepting the types JSON decoding produces.
func (j *Job) Int64(key string) (int64, error) {
	v, ok := j.Args[key]
	if !ok {
		return 0, fmt.Errorf("job %s: missing argument %q", j.Type, key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("job %s: argument %q is %T, not a number", j.Type, key, v)
	}
}

// String reads a string argument; absent or non-string values yield "".
func (j *Job) String(key string) string {
	s, _ := j.Args[key].(string)
	return s
}

// EnqueueResult reports where an accepted job went. Callers log it so an
// enqueue failure is never indistinguishable from success.
type EnqueueResult struct {
	JobID  string
	Stream string
}

// Enqueuer is the producer side of the transport.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, args map[string]any) (*EnqueueResult, error)
}

// Handler processes one delivery of a job. Returning nil acknowledges the
// job. A plain error is treated as transient and retried with backoff up to
// the job's retry ceiling. Wrap with Permanent to fail without retry.
type Handler func(ctx context.Context, job *Job) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: the job is dead-lettered immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Backoff returns the delay before retry number attempt (1-based), using
// bounded exponential growth with full jitter.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}
	return time.Duration(rand.Int63n(int64(d)) + 1)
}

// Registry maps job types to handlers.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job type. Registering the same type twice is
// a programming error.
func (r *Registry) Register(jobType string, h Handler) {
	if _, dup := r.handlers[jobType]; dup {
		panic(fmt.Sprintf("queue: handler already registered for %q", jobType))
	}
	r.handlers[jobType] = h
}

func (r *Registry) Handler(jobType string) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}

func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// verdict classifies the outcome of one delivery attempt.
type verdict int

const (
	verdictDone verdict = iota
	verdictRetry
	verdictDead
)

func classify(job *Job, err error) verdict {
	if err == nil {
		return verdictDone
	}
	if IsPermanent(err) {
		return verdictDead
	}
	if job.Attempt >= job.MaxRetries {
		return verdictDead
	}
	return verdictRetry
}
