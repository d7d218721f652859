// Package errors defines the structured error type shared across PingMem.
// Every public operation surfaces failures as *Error so the tool layer can
// translate them into error envelopes without string matching.
package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for PingMem.
type Error struct {
	// Code is the stable error code (e.g. "ERR_203_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code band.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details carries additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates the operation may succeed on retry.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with the given code and message.
// Category, severity and the retryable flag are derived from the code.
func New(code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates an Error with a formatted message.
func Newf(code string, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an Error from an existing error, keeping it as the cause.
// Returns nil if err is nil.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound creates a not-found error for the given kind and id.
func NotFound(kind, id string) *Error {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", kind, id), nil).
		WithDetail("kind", kind).
		WithDetail("id", id)
}

// DimensionMismatch creates a dimension mismatch error.
func DimensionMismatch(expected, got int) *Error {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil)
}

// BackendUnavailable creates a backend-unavailable error.
func BackendUnavailable(backend string, cause error) *Error {
	return New(ErrCodeBackendUnavailable,
		fmt.Sprintf("%s backend unavailable", backend), cause).
		WithDetail("backend", backend)
}

// SearchMode wraps a search-mode failure with mode attribution.
func SearchMode(mode string, cause error) *Error {
	return New(ErrCodeSearchMode,
		fmt.Sprintf("%s search failed", mode), cause).
		WithDetail("mode", mode)
}

// Embedding wraps an embedding-provider failure.
func Embedding(cause error) *Error {
	return New(ErrCodeEmbedding, "embedding failed", cause)
}

// InvalidInput creates a validation error.
func InvalidInput(message string) *Error {
	return New(ErrCodeInvalidInput, message, nil)
}

// Internal creates an internal invariant-violation error.
func Internal(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeNotFound
}

// IsRetryable reports whether err is retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// Code extracts the error code, or "" if err is not a structured Error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
