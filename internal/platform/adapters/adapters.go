// Package adapters holds the HTTP clients for the external collaborators:
// eligibility payer, billing clearinghouse, e-signature provider, and the EHR
// mirror. Clients are constructed once and injected; no shared module state.
package adapters

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Error describes a failed adapter call. Transient errors (network failure,
// timeout, 5xx) are worth retrying; business rejections (4xx) are not.
type Error struct {
	Op         string
	StatusCode int
	Transient  bool
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is an adapter failure worth retrying.
func IsTransient(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Transient
}

func newClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// wrap converts a resty outcome into our error taxonomy. A nil return means
// the call succeeded with a 2xx.
func wrap(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Op: op, Transient: true, Err: err}
	}
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	return &Error{
		Op:         op,
		StatusCode: code,
		Transient:  code >= 500,
		Body:       string(resp.Body()),
	}
}
