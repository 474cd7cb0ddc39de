package analytics

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Insert(ctx context.Context, a *Assignment) (bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO experiment_assignments (id, patient_id, experiment, variant)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (patient_id, experiment) DO NOTHING`,
		a.ID, a.PatientID, a.Experiment, a.Variant)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Get(ctx context.Context, patientID uuid.UUID, experiment string) (*Assignment, error) {
	var a Assignment
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, experiment, variant, created_at
		FROM experiment_assignments
		WHERE patient_id = $1 AND experiment = $2`, patientID, experiment).
		Scan(&a.ID, &a.PatientID, &a.Experiment, &a.Variant, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoAssignment
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
