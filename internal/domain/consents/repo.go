package consents

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("consent not found")

type Repository interface {
	// Insert writes the consent unless one already exists for the envelope.
	// Reports whether the row was created.
	Insert(ctx context.Context, c *Consent) (bool, error)
	GetByEnvelope(ctx context.Context, envelopeID string) (*Consent, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Consent, error)
}
