package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
)

type Service struct {
	repo  Repository
	audit audit.Recorder
}

func NewService(repo Repository, rec audit.Recorder) *Service {
	return &Service{repo: repo, audit: rec}
}

// create inserts the task and audits only when a row was actually created, so
// duplicate-suppressed retries leave no extra audit entries.
func (s *Service) create(ctx context.Context, t *Task) (*Task, bool, error) {
	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return nil, false, fmt.Errorf("creating %s task: %w", t.Type, err)
	}
	if created {
		s.audit.Record(ctx, "system", "task.create", t.ID.String(), map[string]any{
			"type":  t.Type,
			"title": t.Title,
		})
	}
	return t, created, nil
}

// CreateClaimCorrection opens a correction task for a denied or rejected
// claim. At most one correction task exists per claim.
func (s *Service) CreateClaimCorrection(ctx context.Context, claimID uuid.UUID, reason string) (*Task, bool, error) {
	return s.create(ctx, &Task{
		Type:    TypeClaimCorrection,
		Title:   "Correct and resubmit claim",
		ClaimID: &claimID,
		Details: map[string]any{"reason": reason},
	})
}

// CreateCareEscalation opens an escalation for a high-severity survey score,
// routed to the nurse queue. At most one escalation exists per survey.
func (s *Service) CreateCareEscalation(ctx context.Context, surveyID, patientID uuid.UUID, instrument string, score int) (*Task, bool, error) {
	return s.create(ctx, &Task{
		Type:       TypeCareEscalation,
		Title:      fmt.Sprintf("Clinical review: %s score %d", instrument, score),
		AssignedTo: "nurse_queue",
		SurveyID:   &surveyID,
		PatientID:  &patientID,
		Instrument: instrument,
		Details:    map[string]any{"score": score},
	})
}

// CreateProReminder opens a reminder for a patient overdue on an instrument.
// The unique index only covers open reminders, so a new reminder may be
// created once the previous one is worked.
func (s *Service) CreateProReminder(ctx context.Context, patientID uuid.UUID, instrument string, dueAt time.Time) (*Task, bool, error) {
	return s.create(ctx, &Task{
		Type:       TypeProReminder,
		Title:      fmt.Sprintf("Send %s reminder", instrument),
		PatientID:  &patientID,
		Instrument: instrument,
		DueAt:      &dueAt,
	})
}

// CreateEligibilityFollowup opens a followup when a coverage check disagrees
// with the plan on file. One task per appointment and issue.
func (s *Service) CreateEligibilityFollowup(ctx context.Context, appointmentID uuid.UUID, issue string, details map[string]any) (*Task, bool, error) {
	return s.create(ctx, &Task{
		Type:          TypeEligibilityFollowup,
		Title:         "Verify coverage: " + issue,
		AppointmentID: &appointmentID,
		Issue:         issue,
		Details:       details,
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Task, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// Transition moves a task through its lifecycle. The repository enforces the
// compare-and-set so two workers finishing the same task race safely.
func (s *Service) Transition(ctx context.Context, actor string, id uuid.UUID, to string) (*Task, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("invalid status: %s", to)
	}
	var from []string
	for cur, nexts := range allowedTransitions {
		for _, n := range nexts {
			if n == to {
				from = append(from, cur)
			}
		}
	}
	if len(from) == 0 {
		return nil, fmt.Errorf("status %s is not reachable", to)
	}

	moved, err := s.repo.UpdateStatus(ctx, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("updating task status: %w", err)
	}
	if !moved {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("cannot move task from %s to %s", t.Status, to)
	}

	s.audit.Record(ctx, actor, "task.status", id.String(), map[string]any{"to": to})
	return s.repo.GetByID(ctx, id)
}
