package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid settings
	ErrCatExecution  ErrorCategory = "execution"  // Helper process failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Bounded wait exhausted
	ErrCatIO         ErrorCategory = "io"         // Filesystem or socket fault
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the handshake layer.
type DomainError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
	Details  map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     code,
		Message:  message,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatExecution,
		Code:     code,
		Message:  message,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category: ErrCatTimeout,
		Code:     CodeTimeout,
		Message:  message,
	}
}

// ErrIO creates a filesystem or socket error.
func ErrIO(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatIO,
		Code:     code,
		Message:  message,
	}
}

// ErrInternal creates an internal error.
func ErrInternal(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatInternal,
		Code:     code,
		Message:  message,
	}
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// IsTimeout reports whether err is a bounded-wait timeout.
func IsTimeout(err error) bool {
	return err != nil && IsCategory(err, ErrCatTimeout)
}

// Predefined error codes
const (
	CodeTimeout = "TIMEOUT"

	// Validation error codes
	CodeInvalidConfig  = "INVALID_CONFIG"
	CodeMissingCommand = "MISSING_COMMAND"
	CodeInvalidPolicy  = "INVALID_POLICY"
	CodeMalformedExtra = "MALFORMED_EXTRA"

	// Execution error codes
	CodeSpawnFailed     = "SPAWN_FAILED"
	CodeTerminateFailed = "TERMINATE_FAILED"
	CodeHelperExited    = "HELPER_EXITED"

	// I/O error codes
	CodeBindFailed        = "BIND_FAILED"
	CodeMarkerWriteFailed = "MARKER_WRITE_FAILED"
	CodeChmodFailed       = "CHMOD_FAILED"
	CodeWatchFailed       = "WATCH_FAILED"
	CodeRendezvousFailed  = "RENDEZVOUS_FAILED"

	// Internal error codes
	CodePanic = "PANIC"
)
