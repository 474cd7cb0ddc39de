package claims

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/auth"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

type Service struct {
	repo  Repository
	jobs  queue.Enqueuer
	audit audit.Recorder
}

func NewService(repo Repository, jobs queue.Enqueuer, rec audit.Recorder) *Service {
	return &Service{repo: repo, jobs: jobs, audit: rec}
}

func (s *Service) Create(ctx context.Context, c *Claim) error {
	if c.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if c.AmountCents <= 0 {
		return fmt.Errorf("amount_cents must be positive")
	}
	if len(c.CPTCodes) == 0 {
		return fmt.Errorf("at least one CPT code is required")
	}
	c.Status = StatusNew
	if err := s.repo.Create(ctx, c); err != nil {
		return fmt.Errorf("creating claim: %w", err)
	}
	s.audit.Record(ctx, auth.Actor(ctx), "claim.create", c.ID.String(), map[string]any{
		"payer_id":     c.PayerID,
		"amount_cents": c.AmountCents,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// Submit validates the claim is in a submittable state and enqueues the
// submission job. The clearinghouse call happens asynchronously; the returned
// result identifies the accepted job.
func (s *Service) Submit(ctx context.Context, actor string, id uuid.UUID) (*queue.EnqueueResult, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !contains(SubmittableStatuses, c.Status) {
		return nil, fmt.Errorf("claim is %s; cannot submit", c.Status)
	}

	res, err := s.jobs.Enqueue(ctx, queue.TypeClaimSubmit, map[string]any{"claim_id": id.String()})
	if err != nil {
		return nil, fmt.Errorf("enqueuing claim submission: %w", err)
	}
	s.audit.Record(ctx, actor, "claim.submit.enqueue", id.String(), map[string]any{"job_id": res.JobID})
	return res, nil
}

// Resubmit moves a denied or rejected claim back into the pipeline and
// enqueues a fresh submission.
func (s *Service) Resubmit(ctx context.Context, actor string, id uuid.UUID) (*queue.EnqueueResult, error) {
	moved, err := s.repo.SetStatus(ctx, id, ResubmittableStatuses, StatusResubmit)
	if err != nil {
		return nil, fmt.Errorf("marking claim for resubmission: %w", err)
	}
	if !moved {
		c, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("claim is %s; cannot resubmit", c.Status)
	}

	res, err := s.jobs.Enqueue(ctx, queue.TypeClaimSubmit, map[string]any{"claim_id": id.String()})
	if err != nil {
		return nil, fmt.Errorf("enqueuing claim resubmission: %w", err)
	}
	s.audit.Record(ctx, actor, "claim.resubmit", id.String(), map[string]any{"job_id": res.JobID})
	return res, nil
}

// IngestRemit enqueues processing of an 835 remittance batch.
func (s *Service) IngestRemit(ctx context.Context, actor string, batch *RemitBatch) (*queue.EnqueueResult, error) {
	if len(batch.Payments) == 0 {
		return nil, fmt.Errorf("remit batch has no payments")
	}
	payments := make([]map[string]any, 0, len(batch.Payments))
	for _, p := range batch.Payments {
		payments = append(payments, map[string]any{
			"claim_id":      p.ClaimID.String(),
			"paid_cents":    p.PaidCents,
			"denial_reason": p.DenialReason,
		})
	}
	res, err := s.jobs.Enqueue(ctx, queue.TypeRemitIngest, map[string]any{
		"remit_id": batch.RemitID,
		"payments": payments,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueuing remit ingest: %w", err)
	}
	s.audit.Record(ctx, actor, "remit.ingest.enqueue", batch.RemitID, map[string]any{
		"job_id":   res.JobID,
		"payments": len(batch.Payments),
	})
	return res, nil
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
