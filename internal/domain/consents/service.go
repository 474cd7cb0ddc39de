package consents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/appointments"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/adapters"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/blobstore"
)

// ErrBadSignature rejects webhook callbacks whose HMAC does not match.
var ErrBadSignature = errors.New("invalid webhook signature")

// Signer is the e-signature provider surface.
type Signer interface {
	CreateEnvelope(ctx context.Context, req *adapters.EnvelopeRequest) (*adapters.Envelope, error)
	VerifyWebhook(body []byte, signature string) bool
}

// AppointmentSource resolves the appointment a consent belongs to.
type AppointmentSource interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

// DocumentMirror pushes a reference to the signed document into the connected
// EHR. Best-effort: the mirror swallows its own failures.
type DocumentMirror interface {
	MirrorDocument(ctx context.Context, ref *adapters.DocumentRef)
}

type RequestSignatureInput struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	SignerName    string    `json:"signer_name"`
	SignerEmail   string    `json:"signer_email"`
}

// WebhookPayload is the provider's completion callback body.
type WebhookPayload struct {
	EnvelopeID    string `json:"envelope_id"`
	AppointmentID string `json:"appointment_id"`
	SignerName    string `json:"signer_name"`
	SignerIP      string `json:"signer_ip"`
	Status        string `json:"status"`
}

type Service struct {
	repo   Repository
	signer Signer
	appts  AppointmentSource
	store  blobstore.Store
	mirror DocumentMirror
	audit  audit.Recorder
}

func NewService(repo Repository, signer Signer, appts AppointmentSource, store blobstore.Store, mirror DocumentMirror, rec audit.Recorder) *Service {
	return &Service{repo: repo, signer: signer, appts: appts, store: store, mirror: mirror, audit: rec}
}

// RequestSignature opens a signing envelope for the appointment's consent
// form.
func (s *Service) RequestSignature(ctx context.Context, in *RequestSignatureInput) (*adapters.Envelope, error) {
	if in.AppointmentID == uuid.Nil {
		return nil, fmt.Errorf("appointment_id is required")
	}
	if in.SignerName == "" || in.SignerEmail == "" {
		return nil, fmt.Errorf("signer_name and signer_email are required")
	}
	appt, err := s.appts.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return nil, err
	}

	req := &adapters.EnvelopeRequest{
		DocumentKey: "consent/" + appt.ID.String(),
		SignerName:  in.SignerName,
		SignerEmail: in.SignerEmail,
	}
	if appt.PatientID != nil {
		req.PatientID = appt.PatientID.String()
	}
	env, err := s.signer.CreateEnvelope(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("creating signing envelope: %w", err)
	}
	s.audit.Record(ctx, in.SignerEmail, "signature.request", env.EnvelopeID, map[string]any{
		"appointment_id": appt.ID.String(),
		"signer":         in.SignerName,
	})
	return env, nil
}

// HandleWebhook verifies and applies a completion callback. The consent row
// is keyed on the envelope, so the provider retrying the callback cannot
// double-file.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*Consent, bool, error) {
	if signature == "" || !s.signer.VerifyWebhook(body, signature) {
		return nil, false, ErrBadSignature
	}
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false, fmt.Errorf("decoding webhook payload: %w", err)
	}
	if payload.EnvelopeID == "" {
		return nil, false, fmt.Errorf("envelope_id is required")
	}
	appointmentID, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return nil, false, fmt.Errorf("bad appointment_id: %w", err)
	}

	var patientID *uuid.UUID
	if appt, err := s.appts.GetAppointment(ctx, appointmentID); err == nil {
		patientID = appt.PatientID
	}

	receipt, err := json.Marshal(map[string]any{
		"title":          "Consent (SIGNED)",
		"envelope_id":    payload.EnvelopeID,
		"appointment_id": appointmentID.String(),
		"signer_name":    payload.SignerName,
		"signed_at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, false, err
	}
	artifact, err := s.store.Put(ctx, "consent/"+payload.EnvelopeID+".json", "application/json", receipt)
	if err != nil {
		return nil, false, fmt.Errorf("storing consent receipt: %w", err)
	}

	consent := &Consent{
		PatientID:     patientID,
		AppointmentID: appointmentID,
		EnvelopeID:    payload.EnvelopeID,
		DocumentURL:   artifact.URL,
		SHA256:        artifact.SHA256,
		SignerName:    payload.SignerName,
		SignerIP:      payload.SignerIP,
		SignedAt:      time.Now().UTC(),
	}
	created, err := s.repo.Insert(ctx, consent)
	if err != nil {
		return nil, false, fmt.Errorf("storing consent: %w", err)
	}
	if !created {
		existing, err := s.repo.GetByEnvelope(ctx, payload.EnvelopeID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	s.audit.Record(ctx, payload.SignerName, "consent.signed", payload.EnvelopeID, map[string]any{
		"appointment_id": appointmentID.String(),
		"sha256":         artifact.SHA256,
	})
	if s.mirror != nil {
		ref := &adapters.DocumentRef{Kind: "Consent", URL: artifact.URL, SHA256: artifact.SHA256}
		if patientID != nil {
			ref.PatientID = patientID.String()
		}
		s.mirror.MirrorDocument(ctx, ref)
	}
	return consent, true, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Consent, error) {
	return s.repo.ListByPatient(ctx, patientID, 50)
}
