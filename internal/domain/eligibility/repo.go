package eligibility

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNoResponse = errors.New("no eligibility response recorded")

type Repository interface {
	// Insert appends a new response row. Rows are never updated or deleted.
	Insert(ctx context.Context, r *Response) error
	// Latest returns the most recently created response for the appointment.
	Latest(ctx context.Context, appointmentID uuid.UUID) (*Response, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID, limit int) ([]*Response, error)
}
