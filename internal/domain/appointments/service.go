package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

// ReminderExperiment is the experiment every booked patient is bucketed into.
const ReminderExperiment = "reminder_cadence"

type BookRequest struct {
	PatientEmail    string    `json:"patient_email"`
	Reason          string    `json:"reason"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	SlotID          string    `json:"slot_id"`
	SourceChannel   string    `json:"source_channel,omitempty"`
	InsuranceNumber string    `json:"insurance_number,omitempty"`
}

// BookResult reports the created rows plus the follow-up jobs. Enqueue
// failures do not fail the booking; they surface as warnings so the caller
// can tell a queued check from a dropped one.
type BookResult struct {
	Appointment      *Appointment `json:"appointment"`
	Patient          *Patient     `json:"patient"`
	EligibilityJobID string       `json:"eligibility_job_id,omitempty"`
	VariantJobID     string       `json:"variant_job_id,omitempty"`
	Warnings         []string     `json:"warnings,omitempty"`
}

type Service struct {
	repo  Repository
	jobs  queue.Enqueuer
	audit audit.Recorder
	log   zerolog.Logger
}

func NewService(repo Repository, jobs queue.Enqueuer, rec audit.Recorder, log zerolog.Logger) *Service {
	return &Service{repo: repo, jobs: jobs, audit: rec, log: log}
}

// Book persists the appointment and schedules the coverage check and the
// experiment assignment.
func (s *Service) Book(ctx context.Context, req *BookRequest) (*BookResult, error) {
	if req.PatientEmail == "" {
		return nil, fmt.Errorf("patient_email is required")
	}
	if req.SlotID == "" {
		return nil, fmt.Errorf("slot_id is required")
	}
	if req.Start.IsZero() || req.End.IsZero() || !req.End.After(req.Start) {
		return nil, fmt.Errorf("start and end must form a valid window")
	}

	patient, err := s.repo.EnsurePatient(ctx, req.PatientEmail)
	if err != nil {
		return nil, fmt.Errorf("resolving patient: %w", err)
	}

	channel := req.SourceChannel
	if channel == "" {
		channel = "web"
	}
	appt := &Appointment{
		PatientID:     &patient.ID,
		StartAt:       req.Start,
		EndAt:         req.End,
		Status:        StatusBooked,
		Reason:        req.Reason,
		SourceChannel: channel,
		EHRRef:        "ehr-appt-" + req.SlotID,
	}
	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("creating appointment: %w", err)
	}
	s.audit.Record(ctx, req.PatientEmail, "appointment.book", appt.EHRRef, map[string]any{
		"appointment_id": appt.ID.String(),
		"slot_id":        req.SlotID,
		"source_channel": channel,
	})

	result := &BookResult{Appointment: appt, Patient: patient}

	elig, err := s.jobs.Enqueue(ctx, queue.TypeEligibilityCheck, map[string]any{
		"appointment_id":   appt.ID.String(),
		"patient_email":    req.PatientEmail,
		"reason":           req.Reason,
		"insurance_number": req.InsuranceNumber,
	})
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("eligibility check not enqueued")
		result.Warnings = append(result.Warnings, "eligibility check not enqueued")
	} else {
		result.EligibilityJobID = elig.JobID
	}

	variant, err := s.jobs.Enqueue(ctx, queue.TypeAssignVariant, map[string]any{
		"patient_id": patient.ID.String(),
		"experiment": ReminderExperiment,
	})
	if err != nil {
		s.log.Error().Err(err).Str("patient_id", patient.ID.String()).Msg("variant assignment not enqueued")
		result.Warnings = append(result.Warnings, "variant assignment not enqueued")
	} else {
		result.VariantJobID = variant.JobID
	}

	return result, nil
}

// SubmitIntake stores the form and, when it carries an insurance number,
// re-runs the coverage check with it. The coverage followup is keyed on
// appointment and issue, so a later successful check leaves the earlier task
// in place for a human to close.
func (s *Service) SubmitIntake(ctx context.Context, appointmentID uuid.UUID, answers map[string]any) (*IntakeForm, string, error) {
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, "", err
	}
	form := &IntakeForm{AppointmentID: appt.ID, Answers: answers}
	if err := s.repo.CreateIntakeForm(ctx, form); err != nil {
		return nil, "", fmt.Errorf("storing intake form: %w", err)
	}
	s.audit.Record(ctx, "patient", "intake.submit", appt.ID.String(), map[string]any{
		"form_id": form.ID.String(),
	})

	if form.InsuranceNumber() == "" {
		return form, "", nil
	}
	patientEmail := ""
	if appt.PatientID != nil {
		if p, err := s.repo.GetPatient(ctx, *appt.PatientID); err == nil {
			patientEmail = p.Email
		}
	}
	res, err := s.jobs.Enqueue(ctx, queue.TypeEligibilityCheck, map[string]any{
		"appointment_id":   appt.ID.String(),
		"patient_email":    patientEmail,
		"reason":           appt.Reason,
		"insurance_number": form.InsuranceNumber(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("eligibility recheck not enqueued")
		return form, "", nil
	}
	return form, res.JobID, nil
}

// RecheckEligibility re-enqueues the coverage check, resolving the insurance
// number from the latest intake form.
func (s *Service) RecheckEligibility(ctx context.Context, appointmentID uuid.UUID) (*queue.EnqueueResult, error) {
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	insurance := ""
	form, err := s.repo.LatestIntakeForAppointment(ctx, appt.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving intake form: %w", err)
	}
	if form != nil {
		insurance = form.InsuranceNumber()
	}
	patientEmail := ""
	if appt.PatientID != nil {
		if p, err := s.repo.GetPatient(ctx, *appt.PatientID); err == nil {
			patientEmail = p.Email
		}
	}
	return s.jobs.Enqueue(ctx, queue.TypeEligibilityCheck, map[string]any{
		"appointment_id":   appt.ID.String(),
		"patient_email":    patientEmail,
		"reason":           appt.Reason,
		"insurance_number": insurance,
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) List(ctx context.Context, since time.Time, limit int) ([]*Appointment, error) {
	return s.repo.ListAppointments(ctx, since, limit)
}
