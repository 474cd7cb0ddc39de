// Package consents tracks signed consent documents. Signing runs through the
// e-signature provider: we open an envelope, the provider calls back over an
// HMAC-signed webhook, and the callback files the consent row and a receipt
// artifact. Webhook redelivery is absorbed by the unique envelope key.
package consents

import (
	"time"

	"github.com/google/uuid"
)

type Consent struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     *uuid.UUID `json:"patient_id,omitempty"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	EnvelopeID    string     `json:"envelope_id"`
	DocumentURL   string     `json:"document_url,omitempty"`
	SHA256        string     `json:"sha256,omitempty"`
	SignerName    string     `json:"signer_name,omitempty"`
	SignerIP      string     `json:"signer_ip,omitempty"`
	SignedAt      time.Time  `json:"signed_at"`
	CreatedAt     time.Time  `json:"created_at"`
}
