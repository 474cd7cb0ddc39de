package eligibility

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/tasks"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/adapters"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

// Payer is the eligibility adapter surface.
type Payer interface {
	Check(ctx context.Context, req *adapters.EligibilityRequest) (*adapters.EligibilityResult, error)
}

// FollowupTasks opens mismatch followups. Creation is idempotent on
// (appointment, issue), so redelivered jobs cannot double-create.
type FollowupTasks interface {
	CreateEligibilityFollowup(ctx context.Context, appointmentID uuid.UUID, issue string, details map[string]any) (*tasks.Task, bool, error)
}

type Service struct {
	repo  Repository
	payer Payer
	tasks FollowupTasks
	jobs  queue.Enqueuer
	audit audit.Recorder
}

func NewService(repo Repository, payer Payer, ft FollowupTasks, jobs queue.Enqueuer, rec audit.Recorder) *Service {
	return &Service{repo: repo, payer: payer, tasks: ft, jobs: jobs, audit: rec}
}

// EnqueueCheck schedules an asynchronous coverage check.
func (s *Service) EnqueueCheck(ctx context.Context, req *CheckRequest) (*queue.EnqueueResult, error) {
	if req.AppointmentID == uuid.Nil {
		return nil, fmt.Errorf("appointment_id is required")
	}
	res, err := s.jobs.Enqueue(ctx, queue.TypeEligibilityCheck, map[string]any{
		"appointment_id":   req.AppointmentID.String(),
		"patient_email":    req.PatientEmail,
		"reason":           req.Reason,
		"insurance_number": req.InsuranceNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueuing eligibility check: %w", err)
	}
	return res, nil
}

// Check performs one adapter call, appends the response row, and applies the
// mismatch rule. Used by both the worker (with transport-level retries) and
// the synchronous endpoint. Reports whether a followup task was opened.
func (s *Service) Check(ctx context.Context, req *CheckRequest) (*Response, bool, error) {
	result, err := s.payer.Check(ctx, &adapters.EligibilityRequest{
		AppointmentID:   req.AppointmentID.String(),
		PatientEmail:    req.PatientEmail,
		InsuranceNumber: req.InsuranceNumber,
		Reason:          req.Reason,
	})
	if err != nil {
		return nil, false, err
	}

	resp := &Response{
		AppointmentID: req.AppointmentID,
		Eligible:      result.Eligible,
		Plan:          result.Plan,
		CopayCents:    result.CopayCents,
		Raw:           result.Raw,
	}
	if err := s.repo.Insert(ctx, resp); err != nil {
		return nil, false, fmt.Errorf("recording eligibility response: %w", err)
	}
	s.audit.Record(ctx, "worker", "eligibility.response", req.AppointmentID.String(), map[string]any{
		"eligible": resp.Eligible,
		"plan":     resp.Plan,
	})

	issue := req.Issue(resp.Eligible)
	if issue == "" {
		return resp, false, nil
	}
	_, created, err := s.tasks.CreateEligibilityFollowup(ctx, req.AppointmentID, issue, map[string]any{
		"patient_email": req.PatientEmail,
		"reason":        req.Reason,
		"plan":          resp.Plan,
	})
	if err != nil {
		return resp, false, fmt.Errorf("opening eligibility followup: %w", err)
	}
	return resp, created, nil
}

func (s *Service) Latest(ctx context.Context, appointmentID uuid.UUID) (*Response, error) {
	return s.repo.Latest(ctx, appointmentID)
}

func (s *Service) History(ctx context.Context, appointmentID uuid.UUID, limit int) ([]*Response, error) {
	return s.repo.ListByAppointment(ctx, appointmentID, limit)
}
