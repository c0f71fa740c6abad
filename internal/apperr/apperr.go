// Package apperr defines the error taxonomy surfaced to API callers.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Unauthorized
	Forbidden
	InvalidInput
	NotFound
	Conflict
	Duplicate
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case InvalidInput:
		return "invalid_input"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Duplicate:
		return "duplicate"
	default:
		return "internal"
	}
}

// Error carries a caller-visible message. Message is safe to return to clients.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns a more specific error of the same kind that still matches
// cause under errors.Is.
func Wrap(cause *Error, message string) *Error {
	return &Error{Kind: cause.Kind, Message: message, Cause: cause}
}

func Invalid(message string) *Error {
	return New(InvalidInput, message)
}

// KindOf returns Internal for errors that are not *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the caller-visible message, or fallback for internal errors.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return fallback
}

// HTTPStatus maps a kind to its response status. Conflicts on business
// state are 400; uniqueness clashes are 409.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case InvalidInput, Conflict:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Duplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
