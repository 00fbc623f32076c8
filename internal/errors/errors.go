package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a sitediff error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 404
	ErrLocked          ErrorCode = "LOCKED"           // 409
	ErrIOFailure       ErrorCode = "IO_FAILURE"       // 500
	ErrRegistryCorrupt ErrorCode = "REGISTRY_CORRUPT" // 500
	ErrInternal        ErrorCode = "INTERNAL"         // 500
	ErrFetchFailure    ErrorCode = "FETCH_FAILURE"    // 502
)

// SiteError represents a structured error with code, status, and details.
type SiteError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Err is the underlying cause, if any. It is never serialized.
	Err error
}

// Error implements the error interface.
func (e *SiteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *SiteError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SiteError {
	return &SiteError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing snapshot or file.
func NewNotFound(identifier string) *SiteError {
	return &SiteError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewLocked creates a 409 error when another run holds the run lock.
func NewLocked(holder string) *SiteError {
	return &SiteError{
		Code:    ErrLocked,
		Status:  409,
		Message: fmt.Sprintf("another run is in progress (%s)", holder),
		Details: map[string]any{"holder": holder},
	}
}

// NewIOFailure creates a 500 error for storage read/write/delete failures.
func NewIOFailure(op, path string, err error) *SiteError {
	msg := fmt.Sprintf("%s %s failed", op, path)
	if err != nil {
		msg = fmt.Sprintf("%s %s: %v", op, path, err)
	}
	return &SiteError{
		Code:    ErrIOFailure,
		Status:  500,
		Message: msg,
		Details: map[string]any{"op": op, "path": path},
		Err:     err,
	}
}

// NewRegistryCorrupt creates a 500 error for an unreadable or malformed registry record.
func NewRegistryCorrupt(path, reason string) *SiteError {
	return &SiteError{
		Code:    ErrRegistryCorrupt,
		Status:  500,
		Message: fmt.Sprintf("registry %s is corrupt: %s", path, reason),
		Details: map[string]any{"path": path},
	}
}

// NewFetchFailure creates a 502 error when content retrieval fails.
func NewFetchFailure(url string, err error) *SiteError {
	msg := fmt.Sprintf("fetch %s failed", url)
	if err != nil {
		msg = fmt.Sprintf("fetch %s: %v", url, err)
	}
	return &SiteError{
		Code:    ErrFetchFailure,
		Status:  502,
		Message: msg,
		Details: map[string]any{"url": url},
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *SiteError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &SiteError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		Err:     err,
	}
}

// Is checks if an error (or any error it wraps) is a SiteError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SiteError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As returns the SiteError in err's chain, if any.
func As(err error) (*SiteError, bool) {
	var sErr *SiteError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}
