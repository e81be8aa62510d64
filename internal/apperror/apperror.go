// Package apperror defines the domain error kinds shared by every layer.
//
// Services return these; handlers translate them to HTTP status codes.
// Every constructor wraps one of the sentinel errors below so callers can
// branch with errors.Is without knowing the concrete message.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrExpired      = errors.New("expired")
	ErrUnauthorized = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// Missing is a not-found error with a caller-supplied message, used when
// the missing thing is a relation rather than a record ("no prior version").
func Missing(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

// InvalidShareToken is returned when no share carries the given token.
func InvalidShareToken() *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: "invalid share token",
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Expired marks a grant (share link) whose expiry date has passed.
// HTTP handlers map this to 410 Gone.
func Expired(message string) *AppError {
	return &AppError{
		Err:     ErrExpired,
		Message: message,
	}
}

// Unauthorized means no authenticated caller was found on a route that needs one.
func Unauthorized() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "valid authentication required",
	}
}

// IsKind reports whether err carries an *AppError, i.e. whether it is safe
// to show its message to the caller.
func IsKind(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}
