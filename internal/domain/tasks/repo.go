package tasks

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("task not found")

type Repository interface {
	// Create inserts the task. When another task with the same natural key
	// already exists it reports created=false and leaves the store unchanged.
	Create(ctx context.Context, t *Task) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Task, int, error)
	// UpdateStatus moves the task to status only if its current status is in
	// from. Reports whether a row changed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error)
}

type Filter struct {
	Type       string
	Status     string
	AssignedTo string
	PatientID  *uuid.UUID
}
