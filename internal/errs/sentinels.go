// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across client/orchestration layers.
var (
	// ErrNetwork indicates a transport-level failure (unreachable host,
	// malformed response). Retryable by queuing.
	ErrNetwork = errors.New("network error")

	// ErrAuth indicates no Portal credential could be obtained.
	// Retryable by queuing.
	ErrAuth = errors.New("auth error")

	// ErrPortal indicates the Portal returned a structured business error.
	// Retryable by queuing; the Portal is authoritative on retryability.
	ErrPortal = errors.New("portal error")

	// ErrMapping indicates a required local-to-remote id could not be
	// resolved. Never queued: a missing mapping does not fix itself.
	ErrMapping = errors.New("mapping error")

	// ErrLocalStore indicates the local mirror write failed after a
	// successful remote write. Retryable by queuing the local-only job.
	ErrLocalStore = errors.New("local store error")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// PortalError carries the normalized shape of a Portal application error.
// It wraps ErrPortal (or ErrNotFound for the 404 case) so callers can
// classify with errors.Is while still reading the structured fields.
type PortalError struct {
	Message     string
	StatusCode  string // Portal's own status code field, when present
	Description string
	HTTPStatus  int
	sentinel    error
}

// NewPortalError builds a structured Portal error wrapping ErrPortal.
func NewPortalError(message, statusCode, description string, httpStatus int) *PortalError {
	return &PortalError{
		Message:     message,
		StatusCode:  statusCode,
		Description: description,
		HTTPStatus:  httpStatus,
		sentinel:    ErrPortal,
	}
}

// NewNoRecordError builds the HTTP 404 "no record found" case.
func NewNoRecordError(message string, httpStatus int) *PortalError {
	if message == "" {
		message = "no record found"
	}
	return &PortalError{Message: message, HTTPStatus: httpStatus, sentinel: ErrNotFound}
}

func (e *PortalError) Error() string {
	if e.StatusCode != "" {
		return fmt.Sprintf("portal: %s (code=%s status=%d)", e.Message, e.StatusCode, e.HTTPStatus)
	}
	return fmt.Sprintf("portal: %s (status=%d)", e.Message, e.HTTPStatus)
}

func (e *PortalError) Unwrap() error { return e.sentinel }
