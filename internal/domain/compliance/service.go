package compliance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

type Service struct {
	repo      Repository
	auditRead AuditReader
	jobs      queue.Enqueuer
	audit     audit.Recorder
}

func NewService(repo Repository, ar AuditReader, jobs queue.Enqueuer, rec audit.Recorder) *Service {
	return &Service{repo: repo, auditRead: ar, jobs: jobs, audit: rec}
}

var jobTypeForKind = map[string]string{
	KindExport:  queue.TypeComplianceExport,
	KindPIAPack: queue.TypeCompliancePIAPack,
	KindErasure: queue.TypeComplianceErasure,
}

// CreateRequest persists a NEW request and enqueues its processing job. The
// enqueue result is returned so callers can log the job id.
func (s *Service) CreateRequest(ctx context.Context, actor, kind string, patientID *uuid.UUID, meta map[string]any) (*Request, *queue.EnqueueResult, error) {
	jobType, ok := jobTypeForKind[kind]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported request kind: %s", kind)
	}
	if kind == KindErasure && patientID == nil {
		return nil, nil, fmt.Errorf("erasure requests require patient_id")
	}

	req := &Request{
		Kind:        kind,
		Status:      StatusNew,
		PatientID:   patientID,
		RequestedBy: actor,
		Meta:        meta,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, nil, fmt.Errorf("creating %s request: %w", kind, err)
	}
	s.audit.Record(ctx, actor, "compliance.request.create", req.ID.String(), map[string]any{"kind": kind})

	res, err := s.jobs.Enqueue(ctx, jobType, map[string]any{"request_id": req.ID.String()})
	if err != nil {
		// The request stays visible at NEW; a sweep or manual re-enqueue can
		// pick it up. Callers learn the enqueue failed.
		return req, nil, fmt.Errorf("enqueuing %s job: %w", jobType, err)
	}
	return req, res, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, kind, status string, limit, offset int) ([]*Request, int, error) {
	return s.repo.List(ctx, kind, status, limit, offset)
}

// QueryAudit returns audit entries with secret-bearing detail keys masked.
func (s *Service) QueryAudit(ctx context.Context, actor, since string, limit int) ([]AuditEntry, error) {
	entries, err := s.auditRead.QueryAudit(ctx, actor, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	for i := range entries {
		entries[i].Details = audit.Redact(entries[i].Details)
	}
	return entries, nil
}
