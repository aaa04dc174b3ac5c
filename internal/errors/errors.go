// Package errors provides structured error types with codes for the
// authorization server.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for categorizing errors.
const (
	CodeInternal           = "internal_error"
	CodeNotFound           = "not_found"
	CodeAlreadyExists      = "already_exists"
	CodeInvalidInput       = "invalid_input"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeRateLimited        = "rate_limited"
	CodeInvalidGrant       = "invalid_grant"
	CodeInvalidScope       = "invalid_scope"
	CodeUnknownScope       = "unknown_scope"
	CodeUnauthorizedClient = "unauthorized_client"
	CodeUnsupportedGrant   = "unsupported_grant"
	CodeStoreUnavailable   = "store_unavailable"   // Transient, retryable
	CodeSigningUnavailable = "signing_unavailable" // No usable signing key
)

// Error represents a structured error with a code and message.
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the given code and message.
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsRetryable reports whether the error is transient and the operation may
// be retried. Validation failures are never retryable.
func IsRetryable(err error) bool {
	return IsCode(err, CodeStoreUnavailable)
}

// NotFound creates a not found error.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// AlreadyExists creates an already exists error.
func AlreadyExists(resource, id string) *Error {
	return &Error{
		Code:    CodeAlreadyExists,
		Message: fmt.Sprintf("%s already exists: %s", resource, id),
	}
}

// InvalidInput creates an invalid input error.
func InvalidInput(message string) *Error {
	return &Error{
		Code:    CodeInvalidInput,
		Message: message,
	}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return &Error{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return &Error{
		Code:    CodeForbidden,
		Message: message,
	}
}

// InvalidGrant creates an invalid grant error. All credential mismatches use
// the same message so callers cannot distinguish which check failed.
func InvalidGrant() *Error {
	return &Error{
		Code:    CodeInvalidGrant,
		Message: "invalid credentials or grant",
	}
}

// StoreUnavailable creates a retryable store error.
func StoreUnavailable(err error) *Error {
	return &Error{
		Code:    CodeStoreUnavailable,
		Message: "persistence unavailable",
		Err:     err,
	}
}

// SigningUnavailable creates a signing failure error.
func SigningUnavailable(err error) *Error {
	return &Error{
		Code:    CodeSigningUnavailable,
		Message: "signing key unavailable",
		Err:     err,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: message,
		Err:     err,
	}
}
