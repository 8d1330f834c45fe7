package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Dispatch error codes
const (
	ErrUnknownFunction ErrorCode = "UNKNOWN_FUNCTION"
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrEngineClosed    ErrorCode = "ENGINE_CLOSED"
	ErrCancelled       ErrorCode = "CANCELLED"
)

// Upstream error codes
const (
	ErrUpstreamError    ErrorCode = "UPSTREAM_ERROR"
	ErrAuthentication   ErrorCode = "AUTHENTICATION"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
	ErrIncompleteStream ErrorCode = "INCOMPLETE_STREAM"
)

// Execution error codes
const (
	ErrPoolSaturated ErrorCode = "POOL_SATURATED"
	ErrTimeout       ErrorCode = "TIMEOUT"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	// Partial carries the text assembled before the failure for
	// INCOMPLETE_STREAM errors. It is never written to the cache.
	Partial string `json:"partial,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithPartial attaches the partial text assembled before the failure.
func (e *Error) WithPartial(partial string) *Error {
	e.Partial = partial
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsCancelled reports whether err carries the CANCELLED code.
func IsCancelled(err error) bool {
	return GetErrorCode(err) == ErrCancelled
}
