package synth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrNoProvider is returned when no provider is configured or known.
	ErrNoProvider = errors.New("no synthesis provider configured")

	// ErrMissingAPIKey is returned by cloud providers constructed without a key.
	ErrMissingAPIKey = errors.New("api key is required")
)

// Code classifies synthesis failures.
type Code string

const (
	CodeUnavailable  Code = "UNAVAILABLE"
	CodeTimeout      Code = "TIMEOUT"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeBadResponse  Code = "BAD_RESPONSE"
	CodeFailure      Code = "FAILURE"
)

// Error is a provider failure with enough context to decide whether to retry.
type Error struct {
	Provider string
	Code     Code
	Message  string
	Cause    error
}

// NewError creates a provider error.
func NewError(provider string, code Code, message string, cause error) *Error {
	return &Error{Provider: provider, Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the same request may succeed if tried again.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeTimeout, CodeRateLimited, CodeUnavailable:
		return true
	default:
		return false
	}
}

// Fatal reports whether the provider cannot serve any request as configured.
func (e *Error) Fatal() bool {
	return e.Code == CodeUnauthorized
}

// IsRetryable reports whether err is a retryable provider error.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}

// CodeOf returns the code of err, CodeTimeout for deadline errors and
// CodeFailure otherwise.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeFailure
}

// CodeForStatus maps an HTTP status to an error code.
func CodeForStatus(status int) Code {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeUnauthorized
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status >= 500:
		return CodeUnavailable
	case status >= 400:
		return CodeInvalidInput
	default:
		return CodeBadResponse
	}
}
