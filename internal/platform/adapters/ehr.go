package adapters

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// DocumentRef is a pointer to a document or observation pushed to the EHR
// mirror for charting continuity.
type DocumentRef struct {
	PatientID string `json:"patient_id,omitempty"`
	Kind      string `json:"kind"`
	URL       string `json:"url"`
	SHA256    string `json:"sha256,omitempty"`
}

// EHRClient mirrors references into the connected EHR. Delivery is
// best-effort: failures are logged and never propagate to the caller.
type EHRClient struct {
	http   *resty.Client
	logger zerolog.Logger
}

func NewEHRClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *EHRClient {
	return &EHRClient{http: newClient(baseURL, timeout), logger: logger}
}

func (c *EHRClient) MirrorDocument(ctx context.Context, ref *DocumentRef) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(ref).
		Post("/documents")
	if werr := wrap("ehr mirror", resp, err); werr != nil {
		c.logger.Warn().Err(werr).Str("patient_id", ref.PatientID).
			Str("kind", ref.Kind).Msg("ehr mirror push failed")
	}
}
