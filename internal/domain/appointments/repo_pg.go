package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/surveys"
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

const apptCols = `id, patient_id, start_at, end_at, status, reason, source_channel, ehr_appointment_id, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.StartAt, &a.EndAt, &a.Status,
		&a.Reason, &a.SourceChannel, &a.EHRRef, &a.CreatedAt)
	return &a, err
}

func (r *repoPG) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, start_at, end_at, status, reason, source_channel, ehr_appointment_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.PatientID, a.StartAt, a.EndAt, a.Status, a.Reason, a.SourceChannel, a.EHRRef)
	return err
}

func (r *repoPG) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *repoPG) ListAppointments(ctx context.Context, since time.Time, limit int) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE start_at >= $1
		ORDER BY start_at DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) RecentWithPatients(ctx context.Context, since time.Time) ([]surveys.AppointmentPatient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id FROM appointments
		WHERE start_at >= $1 AND patient_id IS NOT NULL`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []surveys.AppointmentPatient
	for rows.Next() {
		var ap surveys.AppointmentPatient
		if err := rows.Scan(&ap.AppointmentID, &ap.PatientID); err != nil {
			return nil, err
		}
		items = append(items, ap)
	}
	return items, rows.Err()
}

const patientCols = `id, mrn, first_name, last_name, phone, email, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.Phone, &p.Email, &p.CreatedAt)
	return &p, err
}

func (r *repoPG) EnsurePatient(ctx context.Context, email string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patients WHERE email = $1`, email))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	id := uuid.New()
	// Concurrent booking for a new email races here; the unique index on
	// email makes the loser re-read the winner's row.
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, email) VALUES ($1,$2)
		ON CONFLICT (email) DO NOTHING`, id, email)
	if err != nil {
		return nil, err
	}
	return scanPatient(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patients WHERE email = $1`, email))
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	return p, err
}

func (r *repoPG) CreateIntakeForm(ctx context.Context, f *IntakeForm) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO intake_forms (id, appointment_id, answers_json)
		VALUES ($1,$2,$3)`, f.ID, f.AppointmentID, f.Answers)
	return err
}

func (r *repoPG) LatestIntakeForAppointment(ctx context.Context, appointmentID uuid.UUID) (*IntakeForm, error) {
	var f IntakeForm
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, appointment_id, answers_json, created_at FROM intake_forms
		WHERE appointment_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, appointmentID).
		Scan(&f.ID, &f.AppointmentID, &f.Answers, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
