package adapters

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-resty/resty/v2"
)

// EnvelopeRequest asks the e-signature provider to open a signing envelope.
type EnvelopeRequest struct {
	PatientID   string `json:"patient_id,omitempty"`
	DocumentKey string `json:"document_key"`
	SignerName  string `json:"signer_name"`
	SignerEmail string `json:"signer_email"`
}

// Envelope is the provider's handle for a pending signature.
type Envelope struct {
	EnvelopeID string `json:"envelope_id"`
	SigningURL string `json:"signing_url"`
	Status     string `json:"status"`
}

// SignatureClient talks to the e-signature provider. The provider calls back
// with an HMAC-signed webhook when the envelope completes.
type SignatureClient struct {
	http   *resty.Client
	secret []byte
}

func NewSignatureClient(baseURL, webhookSecret string, timeout time.Duration) *SignatureClient {
	c := newClient(baseURL, timeout)
	// Envelope creation is cheap to repeat; two quick retries smooth over
	// provider blips without a full job-level retry cycle.
	c.SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	return &SignatureClient{http: c, secret: []byte(webhookSecret)}
}

func (c *SignatureClient) CreateEnvelope(ctx context.Context, req *EnvelopeRequest) (*Envelope, error) {
	var env Envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&env).
		Post("/envelopes")
	if werr := wrap("signature envelope", resp, err); werr != nil {
		return nil, werr
	}
	return &env, nil
}

// Sign computes the webhook signature for a callback body.
func (c *SignatureClient) Sign(body []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks the X-Signature header value against the raw body.
func (c *SignatureClient) VerifyWebhook(body []byte, signature string) bool {
	expected := c.Sign(body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
