// Package analytics assigns patients to experiment arms. Assignment is
// deterministic in (patient, experiment), so redelivered jobs and concurrent
// bookings always land on the same variant, and the storage layer keeps the
// first row that gets written.
package analytics

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
)

var ErrNoAssignment = errors.New("no assignment recorded")

// Variants per experiment. Unknown experiments fall back to a plain A/B
// split.
var experimentVariants = map[string][]string{
	"reminder_cadence": {"daily", "every_3_days", "weekly"},
}

var defaultVariants = []string{"A", "B"}

type Assignment struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	Experiment string    `json:"experiment"`
	Variant    string    `json:"variant"`
	CreatedAt  time.Time `json:"created_at"`
}

type Repository interface {
	// Insert writes the assignment unless one already exists for the
	// (patient, experiment) pair. Reports whether the row was created.
	Insert(ctx context.Context, a *Assignment) (bool, error)
	Get(ctx context.Context, patientID uuid.UUID, experiment string) (*Assignment, error)
}

// PickVariant buckets a patient into an experiment arm by hashing the pair.
func PickVariant(patientID uuid.UUID, experiment string) string {
	variants, ok := experimentVariants[experiment]
	if !ok {
		variants = defaultVariants
	}
	h := fnv.New64a()
	h.Write([]byte(patientID.String()))
	h.Write([]byte("/"))
	h.Write([]byte(experiment))
	return variants[h.Sum64()%uint64(len(variants))]
}
