package compliance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("compliance request not found")

type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	List(ctx context.Context, kind, status string, limit, offset int) ([]*Request, int, error)
	// SetStatus is a compare-and-set status update that merges extra into the
	// request's meta map instead of overwriting it. An empty resultURL leaves
	// the stored value alone.
	SetStatus(ctx context.Context, id uuid.UUID, from []string, to string, resultURL string, extra map[string]any) (bool, error)
	// ErasePatientData redacts patient identifiers and drops intake forms.
	// Returns the number of rows touched.
	ErasePatientData(ctx context.Context, patientID uuid.UUID) (int64, error)
}

// AuditEntry is a row from the audit query surface.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ActorCount aggregates audit activity per actor over a window.
type ActorCount struct {
	Actor string
	Count int64
}

// AuditReader is the read surface the audit endpoint and the anomaly sweep
// share.
type AuditReader interface {
	QueryAudit(ctx context.Context, actor, since string, limit int) ([]AuditEntry, error)
	CountByActorSince(ctx context.Context, window time.Duration) ([]ActorCount, error)
}
