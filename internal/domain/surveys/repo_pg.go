package surveys

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

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const surveyCols = `id, patient_id, appointment_id, instrument, score, answers, encounter_id, language, created_at`

func scanSurvey(row pgx.Row) (*Survey, error) {
	var s Survey
	err := row.Scan(&s.ID, &s.PatientID, &s.AppointmentID, &s.Instrument,
		&s.Score, &s.Answers, &s.EncounterID, &s.Language, &s.CreatedAt)
	return &s, err
}

func (r *repoPG) Insert(ctx context.Context, s *Survey) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_surveys (id, patient_id, appointment_id, instrument, score, answers, encounter_id, language)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.ID, s.PatientID, s.AppointmentID, s.Instrument, s.Score, s.Answers, s.EncounterID, s.Language)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Survey, error) {
	s, err := scanSurvey(r.conn(ctx).QueryRow(ctx, `
		SELECT `+surveyCols+` FROM patient_surveys WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *repoPG) List(ctx context.Context, f Filter, limit int) ([]*Survey, error) {
	query := `SELECT ` + surveyCols + ` FROM patient_surveys WHERE 1=1`
	args := []interface{}{}
	n := 0
	if f.Instrument != "" {
		n++
		query += fmt.Sprintf(" AND instrument = $%d", n)
		args = append(args, f.Instrument)
	}
	if f.PatientID != nil {
		n++
		query += fmt.Sprintf(" AND patient_id = $%d", n)
		args = append(args, *f.PatientID)
	}
	n++
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", n)
	args = append(args, limit)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *repoPG) HasRecent(ctx context.Context, patientID uuid.UUID, instrument string, since time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patient_surveys
			WHERE patient_id = $1 AND instrument = $2 AND created_at >= $3
		)`, patientID, instrument, since).Scan(&exists)
	return exists, err
}

func (r *repoPG) ListSince(ctx context.Context, since time.Time) ([]*Survey, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+surveyCols+` FROM patient_surveys
		WHERE created_at >= $1
		ORDER BY created_at DESC, id DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Survey, error) {
	var items []*Survey
	for rows.Next() {
		s, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
