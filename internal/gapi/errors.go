package gapi

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// ConfigurationError means the server is missing or carrying a broken
// credential or resource binding. It is an operator problem, not a caller
// problem, and readiness checks surface it.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
	}
	return "configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UpstreamError wraps a failed Sheets/Drive/Docs call. StatusCode is the
// HTTP status Google returned, or 0 for transport-level failures.
type UpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: upstream: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UpstreamTimeoutError is the retryable subset: context deadlines and
// network timeouts. Callers may retry; plain UpstreamErrors they surface.
type UpstreamTimeoutError struct {
	Op  string
	Err error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("%s: upstream timeout: %v", e.Op, e.Err)
}

func (e *UpstreamTimeoutError) Unwrap() error { return e.Err }

// WrapError classifies an error from a Google API call. Timeouts and
// cancellations become UpstreamTimeoutError, everything else UpstreamError.
// A nil error stays nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &UpstreamTimeoutError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &UpstreamTimeoutError{Op: op, Err: err}
	}
	return &UpstreamError{Op: op, StatusCode: StatusCode(err), Err: err}
}

// StatusCode extracts the HTTP status from a googleapi error, or 0.
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
