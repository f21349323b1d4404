package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the externally visible error code.
type Kind string

const (
	Validation            Kind = "validation_error"
	PayloadTooLarge       Kind = "payload_too_large"
	Unauthorized          Kind = "unauthorized"
	DependencyUnavailable Kind = "dependency_unavailable"
	UpstreamFailed        Kind = "upstream_processing_failed"
	Internal              Kind = "internal_error"
)

// Error carries a Kind, a user-facing message and the underlying cause.
// Only Message is ever sent to clients.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or Internal for errors that are not *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to return to a client.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "Internal server error"
}
