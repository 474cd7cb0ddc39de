package surveys

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("survey not found")

type Filter struct {
	Instrument string
	PatientID  *uuid.UUID
}

type Repository interface {
	// Insert appends a submission. Rows are immutable once written.
	Insert(ctx context.Context, s *Survey) error
	GetByID(ctx context.Context, id uuid.UUID) (*Survey, error)
	List(ctx context.Context, f Filter, limit int) ([]*Survey, error)
	// HasRecent reports whether the patient submitted the instrument since
	// the given time. Used by the reminder sweep.
	HasRecent(ctx context.Context, patientID uuid.UUID, instrument string, since time.Time) (bool, error)
	// ListSince returns submissions created after the given time, for the
	// escalation sweep.
	ListSince(ctx context.Context, since time.Time) ([]*Survey, error)
}
