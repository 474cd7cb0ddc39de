package adapters

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
)

// EligibilityRequest is the 270-style query sent to the payer adapter.
type EligibilityRequest struct {
	AppointmentID   string `json:"appointment_id"`
	PatientEmail    string `json:"patient_email"`
	InsuranceNumber string `json:"insurance_number,omitempty"`
	Reason          string `json:"reason"`
}

// EligibilityResult is the 271-style response.
type EligibilityResult struct {
	Eligible   bool            `json:"eligible"`
	Plan       string          `json:"plan"`
	CopayCents int             `json:"copay_cents"`
	Raw        json.RawMessage `json:"raw_json"`
}

// EligibilityClient calls the eligibility payer adapter. Retries on transient
// failures are owned by the job layer, not the client, so one job attempt
// maps to one adapter call.
type EligibilityClient struct {
	http *resty.Client
}

func NewEligibilityClient(baseURL string, timeout time.Duration) *EligibilityClient {
	return &EligibilityClient{http: newClient(baseURL, timeout)}
}

func (c *EligibilityClient) Check(ctx context.Context, req *EligibilityRequest) (*EligibilityResult, error) {
	var result EligibilityResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/eligibility")
	if werr := wrap("eligibility check", resp, err); werr != nil {
		return nil, werr
	}
	if result.Plan == "" {
		result.Plan = "PPO-BASIC"
	}
	if result.Raw == nil {
		result.Raw = resp.Body()
	}
	return &result, nil
}
