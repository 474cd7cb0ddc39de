package claims

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("claim not found")

type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Claim, int, error)
	// SetStatus moves the claim to status only when its current status is in
	// from. Reports whether a row changed.
	SetStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error)
	// MarkSubmitted records clearinghouse acceptance in the same
	// compare-and-set update as the status change.
	MarkSubmitted(ctx context.Context, id uuid.UUID, from []string, payerRef string, at time.Time) (bool, error)
	// MarkOutcome records a denial or rejection reason alongside the status
	// change.
	MarkOutcome(ctx context.Context, id uuid.UUID, from []string, to, reason string) (bool, error)
}

type Filter struct {
	Status    string
	PatientID *uuid.UUID
}
