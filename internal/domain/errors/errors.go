// Package errors provides domain-specific errors for the docsync application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the sync failure taxonomy and common domain conditions.
var (
	// ErrAuthExpired means the file-store session is no longer valid. It halts the
	// current batch or tick and disables auto-sync until re-authentication.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrEmptyContent is a terminal per-file failure: the remote file has no text.
	ErrEmptyContent = errors.New("empty content")

	// ErrEnrichmentFailure is non-fatal; the push continues with a placeholder summary.
	ErrEnrichmentFailure = errors.New("enrichment failed")

	// ErrDestinationRejected means the destination answered with a 4xx/5xx.
	ErrDestinationRejected = errors.New("destination rejected document")

	// ErrNetworkFailure covers transport errors that never produced a response.
	ErrNetworkFailure = errors.New("network failure")

	ErrBusy               = errors.New("reconciliation already in progress")
	ErrDisconnected       = errors.New("not connected to file store")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrLastProfile        = errors.New("cannot remove the last profile")
	ErrInvalidRemoteFile  = errors.New("invalid remote file")
	ErrFileNotInSnapshot  = errors.New("file not in remote snapshot")
	ErrProfileIDRequired  = errors.New("profile ID required")
	ErrFileIDRequired     = errors.New("file ID required")
	ErrDuplicateProfileID = errors.New("duplicate profile ID")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeValidation    ErrorCode = "VALIDATION"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeAuth          ErrorCode = "AUTH"
	CodeContent       ErrorCode = "CONTENT"
	CodeEnrichment    ErrorCode = "ENRICHMENT"
	CodeDestination   ErrorCode = "DESTINATION"
	CodeNetwork       ErrorCode = "NETWORK"
	CodeStorage       ErrorCode = "STORAGE"
	CodeConfiguration ErrorCode = "CONFIG"
)

// DocsyncError wraps errors with additional context for debugging and handling.
type DocsyncError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *DocsyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *DocsyncError) Unwrap() error {
	return e.Cause
}

// NewError creates a new DocsyncError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *DocsyncError {
	return &DocsyncError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error's context and returns the error.
func WithContext(err *DocsyncError, key string, value interface{}) *DocsyncError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// AuthExpired wraps cause as an authentication failure.
func AuthExpired(message string, cause error) *DocsyncError {
	return NewError(CodeAuth, message, join(ErrAuthExpired, cause))
}

// EmptyContent reports a file whose fetched content is blank.
func EmptyContent(fileName string) *DocsyncError {
	return WithContext(NewError(CodeContent, fmt.Sprintf("file %q has no text content", fileName), ErrEmptyContent), "file", fileName)
}

// DestinationRejected wraps a non-2xx destination answer. The remote message is kept
// verbatim so it can be surfaced to the user.
func DestinationRejected(status int, remoteMessage string) *DocsyncError {
	err := NewError(CodeDestination, remoteMessage, ErrDestinationRejected)
	return WithContext(err, "status", status)
}

// NetworkFailure wraps a transport error.
func NetworkFailure(message string, cause error) *DocsyncError {
	return NewError(CodeNetwork, message, join(ErrNetworkFailure, cause))
}

// IsAuthExpired reports whether err carries ErrAuthExpired anywhere in its chain.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// CodeOf returns the code of the first DocsyncError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var de *DocsyncError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Is reports whether err matches target using errors.Is semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target and sets target to that error value.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
