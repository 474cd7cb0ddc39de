// Package tasks manages the operational worklist. Tasks are created by
// workflow workers (claim corrections, care escalations, reminders,
// eligibility followups) and worked by staff through the REST API.
//
// Duplicate suppression happens at the storage layer: each task type carries a
// natural key enforced by a partial unique index, so concurrent creators
// racing on the same key produce exactly one task.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Task types.
const (
	TypeClaimCorrection     = "claim_correction"
	TypeCareEscalation      = "care_escalation"
	TypeProReminder         = "pro_reminder"
	TypeEligibilityFollowup = "eligibility_followup"
)

// Task statuses. Stored lowercase.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusCanceled   = "canceled"
)

type Task struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Title      string    `json:"title"`
	AssignedTo string    `json:"assigned_to,omitempty"`

	// Natural-key columns. Which ones are set depends on Type.
	ClaimID       *uuid.UUID `json:"claim_id,omitempty"`
	SurveyID      *uuid.UUID `json:"survey_id,omitempty"`
	PatientID     *uuid.UUID `json:"patient_id,omitempty"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Instrument    string     `json:"instrument,omitempty"`
	Issue         string     `json:"issue,omitempty"`

	Details   map[string]any `json:"details,omitempty"`
	DueAt     *time.Time     `json:"due_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// allowedTransitions gates status changes. Terminal statuses have no exits.
var allowedTransitions = map[string][]string{
	StatusOpen:       {StatusInProgress, StatusDone, StatusCanceled},
	StatusInProgress: {StatusDone, StatusCanceled},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone, StatusCanceled:
		return true
	}
	return false
}
