package quizsolver

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the closed set of error categories used across the pipeline.
type ErrorKind string

const (
	ErrBadRequest        ErrorKind = "bad_request"
	ErrNotAuthorized     ErrorKind = "not_authorized"
	ErrForbidden         ErrorKind = "forbidden"
	ErrNotFound          ErrorKind = "not_found"
	ErrConflict          ErrorKind = "conflict"
	ErrTooManyRequests   ErrorKind = "too_many_requests"
	ErrApp               ErrorKind = "app"
	ErrParser            ErrorKind = "parser"
	ErrProviderRateLimit ErrorKind = "provider_rate_limit"
	ErrProviderExhausted ErrorKind = "provider_exhausted"
)

// AppError is a tagged error with an HTTP status projection. ParserError is
// the only kind that is fatal to a job; ErrProviderExhausted triggers
// graceful postponement instead of failure.
type AppError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Serialize projects the error into a transport-friendly shape.
func (e *AppError) Serialize() map[string]interface{} {
	return map[string]interface{}{
		"error":  string(e.Kind),
		"status": e.Status,
		"detail": e.Message,
	}
}

func newAppError(kind ErrorKind, status int, message string, err error) *AppError {
	return &AppError{Kind: kind, Status: status, Message: message, Err: err}
}

// NewParserError marks a document as unreadable or yielding no questions.
func NewParserError(message string, err error) *AppError {
	return newAppError(ErrParser, http.StatusUnprocessableEntity, message, err)
}

// NewBadRequestError rejects invalid input such as an unsupported upload.
func NewBadRequestError(message string) *AppError {
	return newAppError(ErrBadRequest, http.StatusBadRequest, message, nil)
}

// NewConflictError flags a duplicate upload.
func NewConflictError(message string) *AppError {
	return newAppError(ErrConflict, http.StatusConflict, message, nil)
}

// NewRateLimitError records a provider quota rejection.
func NewRateLimitError(provider string, err error) *AppError {
	return newAppError(ErrProviderRateLimit, http.StatusTooManyRequests, "provider rate limited: "+provider, err)
}

// NewProviderExhaustedError signals that every provider failed for every
// question of a job, so the job should be postponed rather than completed.
func NewProviderExhaustedError(message string) *AppError {
	return newAppError(ErrProviderExhausted, http.StatusServiceUnavailable, message, nil)
}

// KindOf extracts the error kind, or ErrApp for untagged errors.
func KindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrApp
}

// IsParserError reports whether the error is a terminal parser failure.
func IsParserError(err error) bool { return KindOf(err) == ErrParser }

// IsProviderExhausted reports whether the error asks for postponement.
func IsProviderExhausted(err error) bool { return KindOf(err) == ErrProviderExhausted }
