package tasks

import (
	"context"
	"errors"
	"fmt"

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

const taskCols = `id, type, status, title, assigned_to, claim_id, survey_id,
	patient_id, appointment_id, instrument, issue, details, due_at,
	created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Type, &t.Status, &t.Title, &t.AssignedTo,
		&t.ClaimID, &t.SurveyID, &t.PatientID, &t.AppointmentID,
		&t.Instrument, &t.Issue, &t.Details, &t.DueAt,
		&t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

// Create relies on the partial unique indexes on (claim_id), (survey_id),
// (patient_id, instrument) and (appointment_id, issue) to suppress
// duplicates. ON CONFLICT DO NOTHING makes the race a no-op.
func (r *repoPG) Create(ctx context.Context, t *Task) (bool, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tasks (id, type, status, title, assigned_to, claim_id,
			survey_id, patient_id, appointment_id, instrument, issue,
			details, due_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT DO NOTHING`,
		t.ID, t.Type, t.Status, t.Title, t.AssignedTo, t.ClaimID,
		t.SurveyID, t.PatientID, t.AppointmentID, t.Instrument, t.Issue,
		t.Details, t.DueAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := scanTask(r.conn(ctx).QueryRow(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Task, int, error) {
	query := `SELECT ` + taskCols + ` FROM tasks WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM tasks WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(clause string, val interface{}) {
		query += fmt.Sprintf(clause, idx)
		countQuery += fmt.Sprintf(clause, idx)
		args = append(args, val)
		idx++
	}
	if f.Type != "" {
		add(` AND type = $%d`, f.Type)
	}
	if f.Status != "" {
		add(` AND status = $%d`, f.Status)
	}
	if f.AssignedTo != "" {
		add(` AND assigned_to = $%d`, f.AssignedTo)
	}
	if f.PatientID != nil {
		add(` AND patient_id = $%d`, *f.PatientID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE tasks SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`,
		id, to, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
