// Package apperrors defines the typed failure taxonomy shared by all
// services. Codes map to HTTP statuses at the API boundary only.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "TASK_NOT_FOUND"
	CodeInvalidStatus Code = "INVALID_STATUS"
	CodeConflict      Code = "CONFLICT"
	CodeInvalidPath   Code = "INVALID_PATH"
	CodeDatabase      Code = "DB_ERROR"
	CodeProvider      Code = "OPENAI_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// Error is a tagged failure carrying a taxonomy code and an optional cause
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status the API layer serializes this error with
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidStatus, CodeInvalidPath:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeDatabase:
		return http.StatusServiceUnavailable
	case CodeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input or impossible configuration
func Validation(format string, args ...any) *Error { return newf(CodeValidation, format, args...) }

// NotFound reports a missing job or artifact
func NotFound(format string, args ...any) *Error { return newf(CodeNotFound, format, args...) }

// InvalidStatus reports an operation disallowed for the job's current status
func InvalidStatus(format string, args ...any) *Error {
	return newf(CodeInvalidStatus, format, args...)
}

// Conflict reports a job that is already queued or running
func Conflict(format string, args ...any) *Error { return newf(CodeConflict, format, args...) }

// InvalidPath reports a failed filesystem check
func InvalidPath(format string, args ...any) *Error { return newf(CodeInvalidPath, format, args...) }

// Database wraps a document store failure
func Database(msg string, cause error) *Error {
	return &Error{Code: CodeDatabase, Message: msg, Cause: cause}
}

// Provider wraps an embedding service failure
func Provider(msg string, cause error) *Error {
	return &Error{Code: CodeProvider, Message: msg, Cause: cause}
}

// Internal wraps an unexpected failure
func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, Cause: cause}
}

// CodeOf extracts the taxonomy code from err, defaulting to INTERNAL_ERROR
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// As unwraps err into an *Error, wrapping unknown errors as internal
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal("unexpected error", err)
}
