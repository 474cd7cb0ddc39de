package adapters

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClaimSubmission is the payload POSTed to the clearinghouse adapter.
type ClaimSubmission struct {
	ClaimID string          `json:"claim_id"`
	EDI837  string          `json:"edi837"`
	Payload json.RawMessage `json:"payload"`
}

// ClaimAck is the clearinghouse acknowledgement.
type ClaimAck struct {
	Accepted bool            `json:"accepted"`
	Status   string          `json:"status"`
	PayerRef string          `json:"payer_ref"`
	ID       string          `json:"id"`
	Raw      json.RawMessage `json:"-"`
}

// AcceptedStatus reports whether the clearinghouse signalled acceptance.
// Older adapter builds answer with a status word instead of a boolean.
func (a *ClaimAck) AcceptedStatus() bool {
	if a.Accepted {
		return true
	}
	switch a.Status {
	case "ACCEPTED", "QUEUED", "OK":
		return true
	}
	return false
}

// Ref returns the payer reference, falling back to the adapter's own id.
func (a *ClaimAck) Ref() string {
	if a.PayerRef != "" {
		return a.PayerRef
	}
	return a.ID
}

// BillingClient submits claims to the clearinghouse adapter.
type BillingClient struct {
	http *resty.Client
}

func NewBillingClient(baseURL string, timeout time.Duration) *BillingClient {
	return &BillingClient{http: newClient(baseURL, timeout)}
}

// Submit sends a claim. A transient *Error means the clearinghouse was
// unreachable; a non-transient *Error means it rejected the submission.
func (c *BillingClient) Submit(ctx context.Context, sub *ClaimSubmission) (*ClaimAck, error) {
	var ack ClaimAck
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sub).
		SetResult(&ack).
		Post("/claims")
	if werr := wrap("claim submit", resp, err); werr != nil {
		return nil, werr
	}
	ack.Raw = resp.Body()
	return &ack, nil
}
