package eligibility

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/adapters"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

// Worker consumes eligibility.check jobs. Transient payer failures bubble up
// as plain errors so the transport retries with backoff; the response row and
// followup creation both happen in Check, which is safe to re-run because the
// followup key is unique per appointment and issue.
type Worker struct {
	svc *Service
	log zerolog.Logger
}

func NewWorker(svc *Service, log zerolog.Logger) *Worker {
	return &Worker{svc: svc, log: log}
}

func (w *Worker) Register(reg *queue.Registry) {
	reg.Register(queue.TypeEligibilityCheck, w.HandleCheck)
}

func (w *Worker) HandleCheck(ctx context.Context, job *queue.Job) error {
	appointmentID, err := uuid.Parse(job.String("appointment_id"))
	if err != nil {
		return queue.Permanent(fmt.Errorf("eligibility.check: bad appointment_id: %w", err))
	}

	req := &CheckRequest{
		AppointmentID:   appointmentID,
		PatientEmail:    job.String("patient_email"),
		Reason:          job.String("reason"),
		InsuranceNumber: job.String("insurance_number"),
	}

	resp, followup, err := w.svc.Check(ctx, req)
	if err != nil {
		if adapters.IsTransient(err) {
			return err
		}
		return queue.Permanent(fmt.Errorf("eligibility.check: appointment %s: %w", appointmentID, err))
	}

	w.log.Info().Str("appointment_id", appointmentID.String()).
		Bool("eligible", resp.Eligible).Str("plan", resp.Plan).
		Bool("followup_created", followup).Msg("eligibility check recorded")
	return nil
}
