// Package errors defines the error kinds returned by the gateway.
package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/zavolah/marketplace/infra/supabase"
)

// ErrorCode identifies an error kind on the wire.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeUpstream         ErrorCode = "UPSTREAM_ERROR"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
)

// ServiceError is an error with a kind, a client-safe message and an HTTP status.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail field and returns e.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Validation reports malformed or missing input.
func Validation(message string) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, nil)
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...interface{}) *ServiceError {
	return Validation(fmt.Sprintf(format, args...))
}

// NotFound reports that a resource does not exist.
func NotFound(resource string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, resource+" not found", nil)
}

// Unauthorized reports missing or rejected credentials.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// InvalidToken reports a bearer token that failed verification.
func InvalidToken(err error) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, "invalid or expired token", err)
}

// Forbidden reports an authenticated caller acting outside its rights.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// Conflict reports a uniqueness or state conflict.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// Upstream wraps a store or identity failure. The raw cause is kept for
// logging and never sent to the client.
func Upstream(operation string, err error) *ServiceError {
	return newError(CodeUpstream, http.StatusInternalServerError, operation+" failed", err)
}

// Internal wraps an unexpected local failure.
func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// RateLimitExceeded reports a throttled caller.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// InvalidSignature reports a webhook whose signature did not verify.
func InvalidSignature(err error) *ServiceError {
	return newError(CodeInvalidSignature, http.StatusBadRequest, "invalid webhook signature", err)
}

// GetServiceError extracts a ServiceError from err, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// FromStore classifies an error returned by the store client: a missing row
// becomes NotFound(resource), anything else an upstream failure of operation.
func FromStore(resource, operation string, err error) error {
	if err == nil {
		return nil
	}
	if se := GetServiceError(err); se != nil {
		return se
	}
	if supabase.IsNotFound(err) || errors.Is(err, sql.ErrNoRows) {
		return NotFound(resource)
	}
	return Upstream(operation, err)
}

// Is and As are re-exported so callers need only this package.
var (
	Is = errors.Is
	As = errors.As
)

// New is errors.New.
func New(text string) error {
	return errors.New(text)
}
