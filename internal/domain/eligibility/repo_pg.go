package eligibility

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

const respCols = `id, appointment_id, eligible, plan, copay_cents, raw_json, created_at`

func scanResponse(row pgx.Row) (*Response, error) {
	var resp Response
	err := row.Scan(&resp.ID, &resp.AppointmentID, &resp.Eligible, &resp.Plan,
		&resp.CopayCents, &resp.Raw, &resp.CreatedAt)
	return &resp, err
}

func (r *repoPG) Insert(ctx context.Context, resp *Response) error {
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO eligibility_responses (id, appointment_id, eligible, plan, copay_cents, raw_json)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		resp.ID, resp.AppointmentID, resp.Eligible, resp.Plan, resp.CopayCents, resp.Raw)
	return err
}

func (r *repoPG) Latest(ctx context.Context, appointmentID uuid.UUID) (*Response, error) {
	resp, err := scanResponse(r.conn(ctx).QueryRow(ctx, `
		SELECT `+respCols+` FROM eligibility_responses
		WHERE appointment_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoResponse
	}
	return resp, err
}

func (r *repoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID, limit int) ([]*Response, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+respCols+` FROM eligibility_responses
		WHERE appointment_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, appointmentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, resp)
	}
	return items, rows.Err()
}
