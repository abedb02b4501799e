// Package auth validates recognition-engine credentials before a session
// starts streaming.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Credentials identify the account used by the recognition engine.
type Credentials struct {
	Key    string
	Region string
}

// ErrCredentialsMissing is returned when the key or region is empty.
var ErrCredentialsMissing = errors.New("speech credentials missing: set SPEECH_KEY and SPEECH_REGION")

// Validate reports whether both the key and the region are set.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Key) == "" || strings.TrimSpace(c.Region) == "" {
		return ErrCredentialsMissing
	}
	return nil
}

// Prober performs a one-shot authentication check against the engine.
type Prober interface {
	Probe(ctx context.Context, creds Credentials) error
}

// ProbeError describes a failed probe. StatusCode is zero when the request
// never reached the service.
type ProbeError struct {
	StatusCode int
	Err        error
}

func (e *ProbeError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("auth probe transport failure: %v", e.Err)
	}
	return fmt.Sprintf("auth probe rejected with status %d", e.StatusCode)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Transport reports whether the probe failed before any HTTP status came back.
func (e *ProbeError) Transport() bool { return e.StatusCode == 0 }

// Unavailable reports whether the service could not be reached or answered
// with a server error. Neither says anything about the credentials.
func (e *ProbeError) Unavailable() bool { return e.Transport() || e.StatusCode >= 500 }

// Reason returns the human-readable cause for a rejected probe.
func (e *ProbeError) Reason() string {
	switch {
	case e.StatusCode == 0:
		return "could not reach the speech service"
	case e.StatusCode == http.StatusUnauthorized:
		return "invalid subscription key"
	case e.StatusCode == http.StatusForbidden:
		return "quota exceeded or access denied"
	case e.StatusCode >= 500:
		return fmt.Sprintf("speech service unavailable (status %d)", e.StatusCode)
	default:
		return fmt.Sprintf("authentication failed with status %d", e.StatusCode)
	}
}

// FromGRPC maps a gRPC status error to a ProbeError. A nil error maps to nil.
func FromGRPC(err error) *ProbeError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &ProbeError{Err: err}
	}
	switch st.Code() {
	case codes.OK:
		return nil
	case codes.Unauthenticated:
		return &ProbeError{StatusCode: http.StatusUnauthorized, Err: err}
	case codes.PermissionDenied, codes.ResourceExhausted:
		return &ProbeError{StatusCode: http.StatusForbidden, Err: err}
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return &ProbeError{Err: err}
	case codes.Internal:
		return &ProbeError{StatusCode: http.StatusInternalServerError, Err: err}
	default:
		return &ProbeError{StatusCode: http.StatusBadRequest, Err: err}
	}
}

// HTTPProber issues a single authenticated GET against the engine's
// regional endpoint.
type HTTPProber struct {
	// URL may contain a {region} placeholder.
	URL    string
	Client *http.Client
}

// NewHTTPProber creates a prober with the given request timeout.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Probe returns nil for any 2xx response and a *ProbeError otherwise.
func (p *HTTPProber) Probe(ctx context.Context, creds Credentials) error {
	url := strings.ReplaceAll(p.URL, "{region}", creds.Region)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ProbeError{Err: err}
	}
	req.Header.Set("X-Goog-Api-Key", creds.Key)

	resp, err := p.Client.Do(req)
	if err != nil {
		return &ProbeError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &ProbeError{StatusCode: resp.StatusCode}
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context, creds Credentials) error

func (f ProbeFunc) Probe(ctx context.Context, creds Credentials) error { return f(ctx, creds) }
