// Package eligibility runs insurance coverage checks against the payer
// adapter. Responses are append-only: each check attempt writes a new row, and
// "current" coverage for an appointment is the most recent row. A mismatch
// (missing insurance or ineligible answer) opens a followup task, exactly once
// per appointment and issue.
package eligibility

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Mismatch issues.
const (
	IssueMissingInsurance = "missing_insurance"
	IssueIneligible       = "ineligible"
)

type Response struct {
	ID            uuid.UUID       `json:"id"`
	AppointmentID uuid.UUID       `json:"appointment_id"`
	Eligible      bool            `json:"eligible"`
	Plan          string          `json:"plan"`
	CopayCents    int             `json:"copay_cents"`
	Raw           json.RawMessage `json:"raw_json,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CheckRequest carries the inputs of one coverage check.
type CheckRequest struct {
	AppointmentID   uuid.UUID `json:"appointment_id"`
	PatientEmail    string    `json:"patient_email"`
	Reason          string    `json:"reason"`
	InsuranceNumber string    `json:"insurance_number,omitempty"`
}

// Issue returns the mismatch issue for this request/answer pair, or "" when
// coverage checks out.
func (r *CheckRequest) Issue(eligible bool) string {
	if r.InsuranceNumber == "" {
		return IssueMissingInsurance
	}
	if !eligible {
		return IssueIneligible
	}
	return ""
}
