// Package claims implements the billing claim lifecycle: draft claims are
// assembled into 837P submissions, sent to the clearinghouse asynchronously,
// and resolved by 835 remittance ingest. All status changes go through
// compare-and-set updates so redelivered jobs and concurrent workers cannot
// double-apply a transition.
package claims

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Claim statuses. Stored uppercase.
const (
	StatusNew       = "NEW"
	StatusResubmit  = "RESUBMIT"
	StatusSubmitted = "SUBMITTED"
	StatusPaid      = "PAID"
	StatusDenied    = "DENIED"
	StatusRejected  = "REJECTED"
)

// SubmittableStatuses are the states a claim may be submitted from.
var SubmittableStatuses = []string{StatusNew, StatusResubmit, StatusDenied}

// ResubmittableStatuses are the states a claim may be reworked from.
var ResubmittableStatuses = []string{StatusDenied, StatusRejected}

type Claim struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	PayerID       string     `json:"payer_id"`
	AmountCents   int64      `json:"amount_cents"`
	CPTCodes      []string   `json:"cpt_codes"`
	ICDCodes      []string   `json:"icd_codes"`
	Status        string     `json:"status"`
	PayerRef      string     `json:"payer_ref,omitempty"`
	DenialReason  string     `json:"denial_reason,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RemitPayment is one claim outcome inside an 835 remittance batch.
type RemitPayment struct {
	ClaimID      uuid.UUID `json:"claim_id"`
	Status       string    `json:"status"`
	PaidCents    int64     `json:"paid_cents"`
	DenialReason string    `json:"denial_reason,omitempty"`
}

// RemitBatch is the body accepted by the remit ingest endpoint and carried in
// the ingest job.
type RemitBatch struct {
	RemitID  string         `json:"remit_id"`
	Payments []RemitPayment `json:"payments"`
}

// SubmissionPayload is the JSON body mirrored to the clearinghouse alongside
// the EDI text.
func (c *Claim) SubmissionPayload() json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"claim_id":     c.ID,
		"patient_id":   c.PatientID,
		"payer_id":     c.PayerID,
		"amount_cents": c.AmountCents,
		"cpt_codes":    c.CPTCodes,
		"icd_codes":    c.ICDCodes,
	})
	return b
}

func ValidStatus(s string) bool {
	switch s {
	case StatusNew, StatusResubmit, StatusSubmitted, StatusPaid, StatusDenied, StatusRejected:
		return true
	}
	return false
}
