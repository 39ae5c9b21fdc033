package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")

	// ErrMissingAccessKey marks an extraction that produced no usable access
	// key after all fallbacks. The document cannot be persisted without one.
	ErrMissingAccessKey = errors.New("access key not found")

	// ErrInvalidCredential marks an invalid completion-service credential.
	// It is a configuration problem, never retried across model candidates.
	ErrInvalidCredential = errors.New("invalid completion-service credential")

	// ErrModelUnavailable marks a model the completion service does not
	// serve; the caller advances to the next candidate.
	ErrModelUnavailable = errors.New("model unavailable")
)

// NewAppError builds an AppError.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ValidationError builds the AppError used for rejected submissions.
func ValidationError(message string) *AppError {
	return NewAppError("VALIDATION_ERROR", message, ErrInvalidInput)
}

// ValidationErrorf is ValidationError with formatting.
func ValidationErrorf(format string, args ...any) *AppError {
	return ValidationError(fmt.Sprintf(format, args...))
}

// NotFoundError builds the AppError used for unresolvable resources.
func NotFoundError(message string) *AppError {
	return NewAppError("NOT_FOUND", message, ErrNotFound)
}
