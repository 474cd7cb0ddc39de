package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

type Worker struct {
	repo  Repository
	audit audit.Recorder
	log   zerolog.Logger
}

func NewWorker(repo Repository, rec audit.Recorder, log zerolog.Logger) *Worker {
	return &Worker{repo: repo, audit: rec, log: log}
}

func (w *Worker) Register(reg *queue.Registry) {
	reg.Register(queue.TypeAssignVariant, w.HandleAssignVariant)
}

func (w *Worker) HandleAssignVariant(ctx context.Context, job *queue.Job) error {
	patientID, err := uuid.Parse(job.String("patient_id"))
	if err != nil {
		return queue.Permanent(fmt.Errorf("analytics.assign_variant: bad patient_id: %w", err))
	}
	experiment := job.String("experiment")
	if experiment == "" {
		return queue.Permanent(fmt.Errorf("analytics.assign_variant: experiment is required"))
	}

	assignment := &Assignment{
		PatientID:  patientID,
		Experiment: experiment,
		Variant:    PickVariant(patientID, experiment),
	}
	created, err := w.repo.Insert(ctx, assignment)
	if err != nil {
		return fmt.Errorf("analytics.assign_variant: storing assignment: %w", err)
	}
	if created {
		w.audit.Record(ctx, "worker", "analytics.assign_variant", patientID.String(), map[string]any{
			"experiment": experiment,
			"variant":    assignment.Variant,
		})
	}
	w.log.Info().Str("patient_id", patientID.String()).Str("experiment", experiment).
		Str("variant", assignment.Variant).Bool("created", created).Msg("variant assignment")
	return nil
}
