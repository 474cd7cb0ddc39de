package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

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

func NewRepoPG(pool *pgxpool.Pool) *repoPG {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reqCols = `id, kind, status, patient_id, requested_by, approved_by,
	legal_hold, result_url, meta, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.Kind, &req.Status, &req.PatientID,
		&req.RequestedBy, &req.ApprovedBy, &req.LegalHold, &req.ResultURL,
		&req.Meta, &req.CreatedAt, &req.UpdatedAt)
	return &req, err
}

func (r *repoPG) Create(ctx context.Context, req *Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = StatusNew
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO compliance_requests (id, kind, status, patient_id,
			requested_by, legal_hold, meta)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		req.ID, req.Kind, req.Status, req.PatientID,
		req.RequestedBy, req.LegalHold, req.Meta)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reqCols+` FROM compliance_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func (r *repoPG) List(ctx context.Context, kind, status string, limit, offset int) ([]*Request, int, error) {
	query := `SELECT ` + reqCols + ` FROM compliance_requests WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM compliance_requests WHERE 1=1`
	var args []interface{}
	idx := 1

	if kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, idx)
		countQuery += fmt.Sprintf(` AND kind = $%d`, idx)
		args = append(args, kind)
		idx++
	}
	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, status)
		idx++
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
	var items []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, req)
	}
	return items, total, rows.Err()
}

// SetStatus merges extra into meta with a jsonb concatenation so worker output
// never clobbers the original request fields.
func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, from []string, to string, resultURL string, extra map[string]any) (bool, error) {
	if extra == nil {
		extra = map[string]any{}
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE compliance_requests
		SET status = $2,
			result_url = CASE WHEN $3 = '' THEN result_url ELSE $3 END,
			meta = COALESCE(meta, '{}'::jsonb) || $4::jsonb,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($5)`,
		id, to, resultURL, extra, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) ErasePatientData(ctx context.Context, patientID uuid.UUID) (int64, error) {
	var touched int64
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients
		SET first_name = 'REDACTED', last_name = 'REDACTED', phone = '',
			email = CONCAT('erased+', id, '@redacted.invalid')
		WHERE id = $1`, patientID)
	if err != nil {
		return 0, fmt.Errorf("redacting patient: %w", err)
	}
	touched += tag.RowsAffected()

	tag, err = r.conn(ctx).Exec(ctx, `
		DELETE FROM intake_forms
		WHERE appointment_id IN (SELECT id FROM appointments WHERE patient_id = $1)`, patientID)
	if err != nil {
		return touched, fmt.Errorf("deleting intake forms: %w", err)
	}
	touched += tag.RowsAffected()
	return touched, nil
}

func (r *repoPG) QueryAudit(ctx context.Context, actor, since string, limit int) ([]AuditEntry, error) {
	query := `SELECT id, actor, action, target, details, created_at FROM audit_logs WHERE 1=1`
	var args []interface{}
	idx := 1

	if actor != "" {
		query += fmt.Sprintf(` AND actor = $%d`, idx)
		args = append(args, actor)
		idx++
	}
	if since != "" {
		query += fmt.Sprintf(` AND created_at >= $%d`, idx)
		args = append(args, since)
		idx++
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, idx)
	args = append(args, limit)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) CountByActorSince(ctx context.Context, window time.Duration) ([]ActorCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT actor, COUNT(*) FROM audit_logs
		WHERE created_at >= NOW() - make_interval(secs => $1)
		GROUP BY actor`, window.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var counts []ActorCount
	for rows.Next() {
		var c ActorCount
		if err := rows.Scan(&c.Actor, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
