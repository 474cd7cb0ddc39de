package surveys

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/tasks"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/auth"
)

// EscalationTasks opens the follow-up work items surveys can trigger. Both
// creations are idempotent at the storage layer, so sweeps and inline
// evaluation can overlap without double-creating.
type EscalationTasks interface {
	CreateCareEscalation(ctx context.Context, surveyID, patientID uuid.UUID, instrument string, score int) (*tasks.Task, bool, error)
	CreateProReminder(ctx context.Context, patientID uuid.UUID, instrument string, dueAt time.Time) (*tasks.Task, bool, error)
}

// SubmitRequest is one instrument submission.
type SubmitRequest struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	EncounterID   string     `json:"encounter_id,omitempty"`
	Language      string     `json:"language,omitempty"`
	Answers       []int      `json:"answers"`
}

// SubmitResult carries the stored survey plus the escalation outcome.
type SubmitResult struct {
	Survey           *Survey    `json:"survey"`
	Escalated        bool       `json:"escalated"`
	EscalationTaskID *uuid.UUID `json:"escalation_task_id,omitempty"`
}

type Service struct {
	repo  Repository
	tasks EscalationTasks
	audit audit.Recorder
}

func NewService(repo Repository, et EscalationTasks, rec audit.Recorder) *Service {
	return &Service{repo: repo, tasks: et, audit: rec}
}

// Submit scores and stores a submission, then evaluates the escalation rule
// inline. The escalation task references the survey id, so a re-run on the
// same survey is a no-op.
func (s *Service) Submit(ctx context.Context, instrument string, req *SubmitRequest) (*SubmitResult, error) {
	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if len(req.Answers) == 0 {
		return nil, fmt.Errorf("answers must contain at least one item")
	}
	ins := NormalizeInstrument(instrument)
	if ins == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}

	survey := &Survey{
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		Instrument:    ins,
		Score:         Score(ins, req.Answers),
		Answers:       req.Answers,
		EncounterID:   req.EncounterID,
		Language:      lang,
	}
	if err := s.repo.Insert(ctx, survey); err != nil {
		return nil, fmt.Errorf("storing survey: %w", err)
	}
	s.audit.Record(ctx, auth.Actor(ctx), "survey.submit", survey.ID.String(), map[string]any{
		"instrument": ins,
		"score":      survey.Score,
		"patient_id": survey.PatientID.String(),
	})

	result := &SubmitResult{Survey: survey}
	if ShouldEscalate(ins, survey.Score) {
		task, created, err := s.tasks.CreateCareEscalation(ctx, survey.ID, survey.PatientID, ins, survey.Score)
		if err != nil {
			return nil, fmt.Errorf("opening care escalation: %w", err)
		}
		result.Escalated = created
		if created {
			result.EscalationTaskID = &task.ID
		}
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Survey, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, instrument string, patientID *uuid.UUID, limit int) ([]*Survey, error) {
	return s.repo.List(ctx, Filter{Instrument: NormalizeInstrument(instrument), PatientID: patientID}, limit)
}
