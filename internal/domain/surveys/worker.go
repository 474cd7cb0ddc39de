package surveys

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

// AppointmentSource lists upcoming visits the reminder sweep should cover.
type AppointmentSource interface {
	RecentWithPatients(ctx context.Context, since time.Time) ([]AppointmentPatient, error)
}

type AppointmentPatient struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
}

// Default sweep windows.
const (
	reminderLookback    = 48 * time.Hour
	surveyFreshness     = 7 * 24 * time.Hour
	escalationLookback  = 48 * time.Hour
	reminderInstrument  = "phq9"
	reminderDueInterval = 72 * time.Hour
)

// SweepWindows overrides the sweep lookbacks. Zero fields keep the defaults.
type SweepWindows struct {
	ReminderLookback time.Duration
	SurveyFreshness  time.Duration
}

// Worker runs the periodic sweeps. Both are batch jobs with no per-entity
// arguments; every insert they perform is idempotent, so overlapping or
// redelivered sweeps converge on the same task set.
type Worker struct {
	repo         Repository
	appointments AppointmentSource
	tasks        EscalationTasks
	win          SweepWindows
	log          zerolog.Logger
}

func NewWorker(repo Repository, appts AppointmentSource, et EscalationTasks, win SweepWindows, log zerolog.Logger) *Worker {
	if win.ReminderLookback <= 0 {
		win.ReminderLookback = reminderLookback
	}
	if win.SurveyFreshness <= 0 {
		win.SurveyFreshness = surveyFreshness
	}
	return &Worker{repo: repo, appointments: appts, tasks: et, win: win, log: log}
}

func (w *Worker) Register(reg *queue.Registry) {
	reg.Register(queue.TypeReminderSweep, w.HandleReminderSweep)
	reg.Register(queue.TypeEscalationSweep, w.HandleEscalationSweep)
}

// HandleReminderSweep opens a reminder task for every patient with a recent
// appointment and no fresh submission of the reminder instrument. The open
// reminder uniqueness lives in the tasks store, so two overlapping sweeps
// cannot double-create.
func (w *Worker) HandleReminderSweep(ctx context.Context, job *queue.Job) error {
	lookback := w.win.ReminderLookback
	if days, err := job.Int64("days_back"); err == nil && days > 0 {
		lookback = time.Duration(days) * 24 * time.Hour
	}
	now := time.Now().UTC()

	appts, err := w.appointments.RecentWithPatients(ctx, now.Add(-lookback))
	if err != nil {
		return fmt.Errorf("reminder sweep: listing appointments: %w", err)
	}

	seen := make(map[uuid.UUID]bool)
	created := 0
	for _, a := range appts {
		if a.PatientID == uuid.Nil || seen[a.PatientID] {
			continue
		}
		seen[a.PatientID] = true

		fresh, err := w.repo.HasRecent(ctx, a.PatientID, reminderInstrument, now.Add(-w.win.SurveyFreshness))
		if err != nil {
			return fmt.Errorf("reminder sweep: checking surveys for %s: %w", a.PatientID, err)
		}
		if fresh {
			continue
		}

		_, ok, err := w.tasks.CreateProReminder(ctx, a.PatientID, reminderInstrument, now.Add(reminderDueInterval))
		if err != nil {
			return fmt.Errorf("reminder sweep: opening reminder for %s: %w", a.PatientID, err)
		}
		if ok {
			created++
		}
	}

	w.log.Info().Int("appointments", len(appts)).Int("created", created).Msg("reminder sweep finished")
	return nil
}

// HandleEscalationSweep backfills escalations for recent high-score surveys
// that slipped past the inline rule.
func (w *Worker) HandleEscalationSweep(ctx context.Context, job *queue.Job) error {
	since := time.Now().UTC().Add(-escalationLookback)
	rows, err := w.repo.ListSince(ctx, since)
	if err != nil {
		return fmt.Errorf("escalation sweep: listing surveys: %w", err)
	}

	created := 0
	for _, s := range rows {
		if !ShouldEscalate(s.Instrument, s.Score) {
			continue
		}
		_, ok, err := w.tasks.CreateCareEscalation(ctx, s.ID, s.PatientID, s.Instrument, s.Score)
		if err != nil {
			return fmt.Errorf("escalation sweep: survey %s: %w", s.ID, err)
		}
		if ok {
			created++
		}
	}

	w.log.Info().Int("surveys", len(rows)).Int("created", created).Msg("escalation sweep finished")
	return nil
}
