package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation error")
	ErrUnavailable  = errors.New("service unavailable")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

// Unavailable creates a service unavailable error, used when an upstream
// provider (LLM, payer gateway, fax) is down.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:        ErrUnavailable,
		Message:    message,
		Code:       "UNAVAILABLE",
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Internal creates an internal error
func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Message:    message,
		Code:       "INTERNAL",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with a message, preserving AppError status if present
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Err:        appErr,
			Message:    message,
			Code:       appErr.Code,
			HTTPStatus: appErr.HTTPStatus,
			Details:    appErr.Details,
		}
	}

	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
