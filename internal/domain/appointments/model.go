// Package appointments owns the booking surface: patients, appointment rows,
// and intake forms. Booking kicks off the downstream checks (coverage,
// experiment assignment) over the job queue.
package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses.
const (
	StatusBooked   = "BOOKED"
	StatusChecked  = "CHECKED_IN"
	StatusDone     = "DONE"
	StatusCanceled = "CANCELED"
)

type Patient struct {
	ID        uuid.UUID `json:"id"`
	MRN       string    `json:"mrn,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Appointment struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     *uuid.UUID `json:"patient_id,omitempty"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	SourceChannel string     `json:"source_channel,omitempty"`
	EHRRef        string     `json:"ehr_appointment_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type IntakeForm struct {
	ID            uuid.UUID      `json:"id"`
	AppointmentID uuid.UUID      `json:"appointment_id"`
	Answers       map[string]any `json:"answers"`
	CreatedAt     time.Time      `json:"created_at"`
}

// InsuranceNumber pulls the insurance answer out of an intake form, if the
// patient provided one.
func (f *IntakeForm) InsuranceNumber() string {
	if f == nil || f.Answers == nil {
		return ""
	}
	if v, ok := f.Answers["insurance_number"].(string); ok {
		return v
	}
	return ""
}
