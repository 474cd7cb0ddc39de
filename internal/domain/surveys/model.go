// Package surveys stores patient-reported outcome submissions and drives the
// follow-up rules around them. High scores open care escalation tasks, once
// per survey; recently seen patients without a fresh submission get reminder
// tasks from a periodic sweep.
package surveys

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Escalation thresholds per instrument, boundary inclusive. Instruments
// without an entry never escalate.
var escalationThresholds = map[string]int{
	"phq9": 15,
	"gad7": 15,
}

type Survey struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Instrument    string     `json:"instrument"`
	Score         int        `json:"score"`
	Answers       []int      `json:"answers"`
	EncounterID   string     `json:"encounter_id,omitempty"`
	Language      string     `json:"language"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NormalizeInstrument folds "PHQ-9", "phq_9" and friends down to "phq9".
func NormalizeInstrument(instrument string) string {
	ins := strings.ToLower(strings.TrimSpace(instrument))
	ins = strings.ReplaceAll(ins, "-", "")
	ins = strings.ReplaceAll(ins, "_", "")
	return ins
}

// Score totals the answers for an instrument. PHQ-9 counts the first nine
// items, GAD-7 the first seven; anything else sums everything.
func Score(instrument string, answers []int) int {
	n := len(answers)
	switch NormalizeInstrument(instrument) {
	case "phq9":
		if n > 9 {
			n = 9
		}
	case "gad7":
		if n > 7 {
			n = 7
		}
	}
	total := 0
	for _, a := range answers[:n] {
		total += a
	}
	return total
}

// ShouldEscalate reports whether a score crosses the instrument's escalation
// threshold.
func ShouldEscalate(instrument string, score int) bool {
	threshold, ok := escalationThresholds[NormalizeInstrument(instrument)]
	return ok && score >= threshold
}
