// Package errors defines the service error taxonomy shared by managers and
// the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable kind carried on the wire.
type ErrorCode string

const (
	CodeNotFound     ErrorCode = "NotFoundError"
	CodeConflict     ErrorCode = "ConflictError"
	CodeBadRequest   ErrorCode = "BadRequestError"
	CodeUnauthorized ErrorCode = "UnauthorizedError"
	CodeForbidden    ErrorCode = "ForbiddenError"
	CodeRateLimit    ErrorCode = "TooManyRequestsError"
	CodeInternal     ErrorCode = "InternalServerError"
)

// ServiceError carries a stable code, a human-readable message, and the HTTP
// status the API layer should answer with.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// WithDetails attaches a key/value pair and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause records the underlying error without changing the wire message.
func (e *ServiceError) WithCause(err error) *ServiceError {
	e.cause = err
	return e
}

// NotFound signals a missing resource.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// Conflict signals a uniqueness or state violation.
func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// BadRequest signals an unprocessable request.
func BadRequest(message string) *ServiceError {
	return &ServiceError{Code: CodeBadRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized signals a missing or invalid caller identity.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// Forbidden signals an authenticated caller without sufficient rights.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// InvalidToken signals a failed token validation.
func InvalidToken(cause error) *ServiceError {
	e := Unauthorized("Invalid authentication token")
	e.cause = cause
	return e
}

// RateLimitExceeded signals that the caller exceeded its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := &ServiceError{Code: CodeRateLimit, Message: "Rate limit exceeded", HTTPStatus: http.StatusTooManyRequests}
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, cause: cause}
}

// GetServiceError returns the ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// IsNotFound reports whether err carries the NotFound code.
func IsNotFound(err error) bool {
	if e := GetServiceError(err); e != nil {
		return e.Code == CodeNotFound
	}
	return false
}

// IsConflict reports whether err carries the Conflict code.
func IsConflict(err error) bool {
	if e := GetServiceError(err); e != nil {
		return e.Code == CodeConflict
	}
	return false
}
