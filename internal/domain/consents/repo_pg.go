package consents

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

const consentCols = `id, patient_id, appointment_id, envelope_id, document_url, sha256, signer_name, signer_ip, signed_at, created_at`

func scanConsent(row pgx.Row) (*Consent, error) {
	var c Consent
	err := row.Scan(&c.ID, &c.PatientID, &c.AppointmentID, &c.EnvelopeID, &c.DocumentURL,
		&c.SHA256, &c.SignerName, &c.SignerIP, &c.SignedAt, &c.CreatedAt)
	return &c, err
}

func (r *repoPG) Insert(ctx context.Context, c *Consent) (bool, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consents (id, patient_id, appointment_id, envelope_id, document_url, sha256, signer_name, signer_ip, signed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (envelope_id) DO NOTHING`,
		c.ID, c.PatientID, c.AppointmentID, c.EnvelopeID, c.DocumentURL,
		c.SHA256, c.SignerName, c.SignerIP, c.SignedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) GetByEnvelope(ctx context.Context, envelopeID string) (*Consent, error) {
	c, err := scanConsent(r.conn(ctx).QueryRow(ctx, `
		SELECT `+consentCols+` FROM consents WHERE envelope_id = $1`, envelopeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Consent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+consentCols+` FROM consents
		WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
