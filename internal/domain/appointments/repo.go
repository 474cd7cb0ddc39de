package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/surveys"
)

var (
	ErrNotFound        = errors.New("appointment not found")
	ErrPatientNotFound = errors.New("patient not found")
)

type Repository interface {
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, since time.Time, limit int) ([]*Appointment, error)
	// RecentWithPatients feeds the reminder sweep.
	RecentWithPatients(ctx context.Context, since time.Time) ([]surveys.AppointmentPatient, error)

	// EnsurePatient finds a patient by email or creates one.
	EnsurePatient(ctx context.Context, email string) (*Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateIntakeForm(ctx context.Context, f *IntakeForm) error
	// LatestIntakeForAppointment returns the most recent intake form filed
	// against the appointment, or nil when none exists.
	LatestIntakeForAppointment(ctx context.Context, appointmentID uuid.UUID) (*IntakeForm, error)
}
