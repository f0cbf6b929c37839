package utils

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrInvalidInput = "INVALID_INPUT"

	// Authentication/Authorization errors
	ErrAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	ErrNotParticipant         = "NOT_PARTICIPANT"
	ErrForbidden              = "FORBIDDEN"

	// Storage errors
	ErrConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrDatabase            = "DATABASE_ERROR"
	ErrStoreUnavailable    = "STORE_UNAVAILABLE"

	// Actor communication errors
	ErrActorTimeout = "ACTOR_TIMEOUT"

	// Connection errors
	ErrTransport = "TRANSPORT_ERROR"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: ErrInvalidInput, Message: message}
}

func NewNotFoundError(what string) *AppError {
	return &AppError{Code: ErrNotFound, Message: what + " not found"}
}

func NewNotParticipantError() *AppError {
	return &AppError{Code: ErrNotParticipant, Message: "user is not a participant of this conversation"}
}

func NewDatabaseError(message string, originalErr error) *AppError {
	return &AppError{Code: ErrDatabase, Message: message, Origin: originalErr}
}

// IsErrorCode reports whether err, or anything it wraps, is an AppError with code.
func IsErrorCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ErrorCode returns the AppError code carried by err, or "" when there is none.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsAuthError reports whether err should end a connection without detail.
func IsAuthError(err error) bool {
	switch ErrorCode(err) {
	case ErrAuthenticationRequired, ErrForbidden:
		return true
	}
	return false
}

// IsClientError reports errors caused by the request itself. These are
// reported back to the caller and never retried.
func IsClientError(err error) bool {
	switch ErrorCode(err) {
	case ErrInvalidInput, ErrNotParticipant, ErrNotFound, ErrAuthenticationRequired, ErrForbidden:
		return true
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidInput:
		return http.StatusBadRequest
	case ErrAuthenticationRequired:
		return http.StatusUnauthorized
	case ErrForbidden, ErrNotParticipant:
		return http.StatusForbidden
	case ErrConcurrencyConflict:
		return http.StatusConflict
	case ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
