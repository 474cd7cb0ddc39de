package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/tasks"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/adapters"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

// Clearinghouse is the billing adapter surface the worker needs.
type Clearinghouse interface {
	Submit(ctx context.Context, sub *adapters.ClaimSubmission) (*adapters.ClaimAck, error)
}

// CorrectionTasks opens worklist items for denied claims.
type CorrectionTasks interface {
	CreateClaimCorrection(ctx context.Context, claimID uuid.UUID, reason string) (*tasks.Task, bool, error)
}

// Worker consumes claims.submit and remits.ingest jobs.
type Worker struct {
	repo    Repository
	billing Clearinghouse
	tasks   CorrectionTasks
	audit   audit.Recorder
	log     zerolog.Logger
}

func NewWorker(repo Repository, billing Clearinghouse, ct CorrectionTasks, rec audit.Recorder, log zerolog.Logger) *Worker {
	return &Worker{repo: repo, billing: billing, tasks: ct, audit: rec, log: log}
}

func (w *Worker) Register(reg *queue.Registry) {
	reg.Register(queue.TypeClaimSubmit, w.HandleSubmit)
	reg.Register(queue.TypeRemitIngest, w.HandleRemit)
}

// HandleSubmit performs one clearinghouse submission attempt. Transient
// adapter failures are retried by the transport; on the final attempt the
// claim is parked in REJECTED so it never sits in a submittable state with a
// dead job behind it. Business rejections go straight to REJECTED.
func (w *Worker) HandleSubmit(ctx context.Context, job *queue.Job) error {
	claimID, err := uuid.Parse(job.String("claim_id"))
	if err != nil {
		return queue.Permanent(fmt.Errorf("claims.submit: bad claim_id: %w", err))
	}

	c, err := w.repo.GetByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return queue.Permanent(fmt.Errorf("claims.submit: claim %s not found", claimID))
		}
		return err
	}
	if !contains(SubmittableStatuses, c.Status) {
		// Redelivery after a successful attempt; nothing to do.
		w.log.Debug().Str("claim_id", claimID.String()).Str("status", c.Status).
			Msg("claim not submittable, skipping redelivery")
		return nil
	}

	ack, err := w.billing.Submit(ctx, &adapters.ClaimSubmission{
		ClaimID: c.ID.String(),
		EDI837:  Assemble837(c, time.Now().UTC()),
		Payload: c.SubmissionPayload(),
	})
	if err != nil {
		if adapters.IsTransient(err) {
			if job.Attempt >= job.MaxRetries {
				w.park(ctx, c.ID, "adapter_unavailable")
				return queue.Permanent(fmt.Errorf("claims.submit: clearinghouse unreachable after %d attempts: %w", job.Attempt+1, err))
			}
			return err
		}
		// Business rejection: clearinghouse answered, said no.
		w.park(ctx, c.ID, err.Error())
		return queue.Permanent(fmt.Errorf("claims.submit: rejected by clearinghouse: %w", err))
	}

	if !ack.AcceptedStatus() {
		w.park(ctx, c.ID, "not_accepted:"+ack.Status)
		return queue.Permanent(fmt.Errorf("claims.submit: clearinghouse did not accept claim %s", c.ID))
	}

	moved, err := w.repo.MarkSubmitted(ctx, c.ID, SubmittableStatuses, ack.Ref(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("claims.submit: recording submission: %w", err)
	}
	if moved {
		w.audit.Record(ctx, "worker", "claim.submitted", c.ID.String(), map[string]any{"payer_ref": ack.Ref()})
	}
	return nil
}

// park moves the claim to REJECTED with a reason. Losing the race to another
// worker is fine; the claim already left the submittable set.
func (w *Worker) park(ctx context.Context, id uuid.UUID, reason string) {
	moved, err := w.repo.MarkOutcome(ctx, id, SubmittableStatuses, StatusRejected, reason)
	if err != nil {
		w.log.Error().Err(err).Str("claim_id", id.String()).Msg("failed to park rejected claim")
		return
	}
	if moved {
		w.audit.Record(ctx, "worker", "claim.rejected", id.String(), map[string]any{"reason": reason})
	}
}

// HandleRemit applies an 835 remittance batch. Each payment resolves one
// submitted claim; a denial opens a correction task. Unknown claim ids are
// logged and skipped so one bad line cannot wedge the whole batch.
func (w *Worker) HandleRemit(ctx context.Context, job *queue.Job) error {
	payments := paymentMaps(job.Args["payments"])
	if payments == nil {
		return queue.Permanent(fmt.Errorf("remits.ingest: missing payments"))
	}

	for _, p := range payments {
		claimID, err := uuid.Parse(stringArg(p, "claim_id"))
		if err != nil {
			w.log.Warn().Interface("payment", p).Msg("remit payment with bad claim_id, skipping")
			continue
		}
		paid := int64Arg(p, "paid_cents")
		reason := stringArg(p, "denial_reason")

		if paid > 0 {
			moved, err := w.repo.SetStatus(ctx, claimID, []string{StatusSubmitted}, StatusPaid)
			if err != nil {
				return fmt.Errorf("remits.ingest: marking claim %s paid: %w", claimID, err)
			}
			if moved {
				w.audit.Record(ctx, "worker", "claim.paid", claimID.String(), map[string]any{"paid_cents": paid})
			}
			continue
		}

		if reason == "" {
			reason = "CO-97"
		}
		moved, err := w.repo.MarkOutcome(ctx, claimID, []string{StatusSubmitted}, StatusDenied, reason)
		if err != nil {
			return fmt.Errorf("remits.ingest: marking claim %s denied: %w", claimID, err)
		}
		if moved {
			w.audit.Record(ctx, "worker", "claim.denied", claimID.String(), map[string]any{"reason": reason})
		} else {
			// Redelivery after a crash between the status write and the task
			// insert still owes the correction task; the unique index makes
			// the retry safe. Anything not already DENIED is a stale remit.
			cur, err := w.repo.GetByID(ctx, claimID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					w.log.Warn().Str("claim_id", claimID.String()).Msg("remit for unknown claim, skipping")
					continue
				}
				return fmt.Errorf("remits.ingest: re-reading claim %s: %w", claimID, err)
			}
			if cur.Status != StatusDenied {
				w.log.Warn().Str("claim_id", claimID.String()).Str("status", cur.Status).
					Msg("remit for claim not in SUBMITTED, skipping")
				continue
			}
		}
		if _, _, err := w.tasks.CreateClaimCorrection(ctx, claimID, reason); err != nil {
			return fmt.Errorf("remits.ingest: opening correction task for %s: %w", claimID, err)
		}
	}
	return nil
}

// paymentMaps tolerates both decoded JSON ([]any) and in-process enqueue
// payloads ([]map[string]any).
func paymentMaps(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, raw := range list {
			if m, ok := raw.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func stringArg(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func int64Arg(m map[string]any, key string) int64 {
	switch n := m[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
