package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/blobstore"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

// Worker consumes compliance.* jobs. Every run ends in a terminal state:
// DONE, DENIED (legal hold), or ERROR on any failure including panics.
type Worker struct {
	repo      Repository
	auditRead AuditReader
	store     blobstore.Store
	audit     audit.Recorder
	log       zerolog.Logger
}

func NewWorker(repo Repository, ar AuditReader, store blobstore.Store, rec audit.Recorder, log zerolog.Logger) *Worker {
	return &Worker{repo: repo, auditRead: ar, store: store, audit: rec, log: log}
}

func (w *Worker) Register(reg *queue.Registry) {
	reg.Register(queue.TypeComplianceExport, w.HandleExport)
	reg.Register(queue.TypeCompliancePIAPack, w.HandlePIAPack)
	reg.Register(queue.TypeComplianceErasure, w.HandleErasure)
	reg.Register(queue.TypeComplianceAnomaly, w.HandleAnomalyScan)
}

// process claims the request, runs the kind-specific step, and guarantees a
// terminal status. RUNNING is written before any work so a crash mid-run is
// visible, and a redelivered job can pick the request back up.
func (w *Worker) process(ctx context.Context, job *queue.Job, kind string, run func(ctx context.Context, req *Request) error) (err error) {
	id, parseErr := uuid.Parse(job.String("request_id"))
	if parseErr != nil {
		return queue.Permanent(fmt.Errorf("%s: bad request_id: %w", job.Type, parseErr))
	}

	req, getErr := w.repo.GetByID(ctx, id)
	if getErr != nil {
		if errors.Is(getErr, ErrNotFound) {
			return queue.Permanent(fmt.Errorf("%s: request %s not found", job.Type, id))
		}
		return getErr
	}
	if req.Terminal() {
		w.log.Debug().Str("request_id", id.String()).Str("status", req.Status).
			Msg("compliance request already terminal, skipping redelivery")
		return nil
	}
	if req.Kind != kind {
		return queue.Permanent(fmt.Errorf("%s: request %s has kind %s", job.Type, id, req.Kind))
	}

	if moved, casErr := w.repo.SetStatus(ctx, id, ProcessableStatuses, StatusRunning, "", nil); casErr != nil {
		return casErr
	} else if !moved {
		// Lost the race to a concurrent delivery that finished first.
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			w.fail(ctx, id, fmt.Sprintf("panic: %v", rec))
			err = queue.Permanent(fmt.Errorf("%s: panic processing request %s: %v", job.Type, id, rec))
		}
	}()

	if runErr := run(ctx, req); runErr != nil {
		w.fail(ctx, id, runErr.Error())
		return queue.Permanent(fmt.Errorf("%s: request %s failed: %w", job.Type, id, runErr))
	}
	return nil
}

// fail parks the request in ERROR with the failure recorded in meta. Nothing
// here can raise; this is the last line of defence against stuck requests.
func (w *Worker) fail(ctx context.Context, id uuid.UUID, reason string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := w.repo.SetStatus(ctx, id, []string{StatusRunning}, StatusError, "", map[string]any{"error": reason}); err != nil {
		w.log.Error().Err(err).Str("request_id", id.String()).Msg("failed to mark compliance request ERROR")
		return
	}
	w.audit.Record(ctx, "worker", "compliance.error", id.String(), map[string]any{"error": reason})
}

func (w *Worker) HandleExport(ctx context.Context, job *queue.Job) error {
	return w.process(ctx, job, KindExport, func(ctx context.Context, req *Request) error {
		lines := [][2]string{
			{"Request ID", req.ID.String()},
			{"Kind", req.Kind},
			{"Scope", metaString(req.Meta, "scope", "patient_all_data")},
			{"Redactions", metaString(req.Meta, "redactions", "secrets, internal_keys")},
			{"Requested by", req.RequestedBy},
		}
		if req.PatientID != nil {
			lines = append(lines, [2]string{"Patient", req.PatientID.String()})
		}
		data, err := buildWorkbook("Compliance Export Summary", lines)
		if err != nil {
			return fmt.Errorf("building export workbook: %w", err)
		}

		key := fmt.Sprintf("compliance/export/%s.xlsx", req.ID)
		art, err := w.store.Put(ctx, key, xlsxContentType, data)
		if err != nil {
			return fmt.Errorf("storing export artifact: %w", err)
		}

		moved, err := w.repo.SetStatus(ctx, req.ID, []string{StatusRunning}, StatusDone, art.URL, map[string]any{
			"result_url":      art.URL,
			"artifact_sha256": art.SHA256,
		})
		if err != nil {
			return fmt.Errorf("marking export done: %w", err)
		}
		if moved {
			w.audit.Record(ctx, "worker", "compliance.export.done", req.ID.String(), map[string]any{"result_url": art.URL})
		}
		return nil
	})
}

func (w *Worker) HandlePIAPack(ctx context.Context, job *queue.Job) error {
	return w.process(ctx, job, KindPIAPack, func(ctx context.Context, req *Request) error {
		lines := [][2]string{
			{"Request ID", req.ID.String()},
			{"Data flows", metaString(req.Meta, "data_flows", "N/A")},
			{"Subprocessors", metaString(req.Meta, "subprocessors", "N/A")},
			{"Retention", metaString(req.Meta, "retention", "N/A")},
			{"Scope", metaString(req.Meta, "scope", "N/A")},
		}
		data, err := buildWorkbook("PIA/IMA Pack", lines)
		if err != nil {
			return fmt.Errorf("building pia workbook: %w", err)
		}

		key := fmt.Sprintf("compliance/pia/%s.xlsx", req.ID)
		art, err := w.store.Put(ctx, key, xlsxContentType, data)
		if err != nil {
			return fmt.Errorf("storing pia artifact: %w", err)
		}

		moved, err := w.repo.SetStatus(ctx, req.ID, []string{StatusRunning}, StatusDone, art.URL, map[string]any{
			"result_url":      art.URL,
			"artifact_sha256": art.SHA256,
		})
		if err != nil {
			return fmt.Errorf("marking pia pack done: %w", err)
		}
		if moved {
			w.audit.Record(ctx, "worker", "compliance.pia_pack.done", req.ID.String(), map[string]any{"result_url": art.URL})
		}
		return nil
	})
}

// HandleErasure checks the legal hold before touching any data. A held
// request lands in DENIED with the reason preserved in meta.
func (w *Worker) HandleErasure(ctx context.Context, job *queue.Job) error {
	return w.process(ctx, job, KindErasure, func(ctx context.Context, req *Request) error {
		if req.LegalHold {
			moved, err := w.repo.SetStatus(ctx, req.ID, []string{StatusRunning}, StatusDenied, "", map[string]any{
				"denial_reason": "legal_hold",
			})
			if err != nil {
				return fmt.Errorf("marking erasure denied: %w", err)
			}
			if moved {
				w.audit.Record(ctx, "worker", "compliance.erasure.denied", req.ID.String(), map[string]any{"reason": "legal_hold"})
			}
			return nil
		}
		if req.PatientID == nil {
			return fmt.Errorf("erasure request has no patient_id")
		}

		rows, err := w.repo.ErasePatientData(ctx, *req.PatientID)
		if err != nil {
			return fmt.Errorf("erasing patient data: %w", err)
		}

		moved, err := w.repo.SetStatus(ctx, req.ID, []string{StatusRunning}, StatusDone, "", map[string]any{
			"erased":       true,
			"rows_touched": rows,
		})
		if err != nil {
			return fmt.Errorf("marking erasure done: %w", err)
		}
		if moved {
			w.audit.Record(ctx, "worker", "compliance.erasure.done", req.ID.String(), map[string]any{"rows_touched": rows})
		}
		return nil
	})
}

// anomaly spike threshold: daily count at least 3x the daily average of the
// trailing week, plus a flat floor of 10.
func spike(day, week int64) bool {
	if week < 1 {
		week = 1
	}
	return float64(day) >= 3*(float64(week)/7.0)+10
}

// HandleAnomalyScan compares each actor's daily audit volume against their
// weekly baseline and files an anomaly request when someone spikes.
func (w *Worker) HandleAnomalyScan(ctx context.Context, job *queue.Job) error {
	day, err := w.auditRead.CountByActorSince(ctx, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("anomaly scan: counting daily audit activity: %w", err)
	}
	week, err := w.auditRead.CountByActorSince(ctx, 7*24*time.Hour)
	if err != nil {
		return fmt.Errorf("anomaly scan: counting weekly audit activity: %w", err)
	}

	weekByActor := make(map[string]int64, len(week))
	for _, c := range week {
		weekByActor[c.Actor] = c.Count
	}

	var flagged []map[string]any
	for _, c := range day {
		if spike(c.Count, weekByActor[c.Actor]) {
			flagged = append(flagged, map[string]any{
				"actor": c.Actor,
				"day":   c.Count,
				"week":  weekByActor[c.Actor],
			})
		}
	}
	if len(flagged) == 0 {
		return nil
	}

	req := &Request{
		Kind:   KindAnomaly,
		Status: StatusDone,
		Meta:   map[string]any{"flagged": flagged},
	}
	if err := w.repo.Create(ctx, req); err != nil {
		return fmt.Errorf("anomaly scan: filing anomaly request: %w", err)
	}
	w.audit.Record(ctx, "worker", "compliance.anomaly.flagged", req.ID.String(), map[string]any{"actors": len(flagged)})
	return nil
}
