// Package compliance implements privacy-operations tickets: data export,
// erasure, and PIA pack generation, plus the anomaly sweep over audit logs.
// Requests move to exactly one terminal state per processing run; a failed or
// panicking worker lands the request in ERROR, never stuck at NEW.
package compliance

import (
	"time"

	"github.com/google/uuid"
)

// Request kinds.
const (
	KindExport    = "export"
	KindErasure   = "erasure"
	KindPIAPack   = "pia_pack"
	KindRetention = "retention"
	KindAnomaly   = "anomaly"
)

// Request statuses. Stored uppercase.
const (
	StatusNew      = "NEW"
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRunning  = "RUNNING"
	StatusDone     = "DONE"
	StatusDenied   = "DENIED"
	StatusError    = "ERROR"
)

// ProcessableStatuses are the states a worker may pick a request up from.
// RUNNING is included so a redelivered job can finish a crashed run.
var ProcessableStatuses = []string{StatusNew, StatusPending, StatusApproved, StatusRunning}

type Request struct {
	ID          uuid.UUID      `json:"id"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	PatientID   *uuid.UUID     `json:"patient_id,omitempty"`
	RequestedBy string         `json:"requested_by,omitempty"`
	ApprovedBy  string         `json:"approved_by,omitempty"`
	LegalHold   bool           `json:"legal_hold"`
	ResultURL   string         `json:"result_url,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Terminal reports whether the request has reached a final state.
func (r *Request) Terminal() bool {
	switch r.Status {
	case StatusDone, StatusDenied, StatusError:
		return true
	}
	return false
}

func ValidKind(k string) bool {
	switch k {
	case KindExport, KindErasure, KindPIAPack, KindRetention, KindAnomaly:
		return true
	}
	return false
}
