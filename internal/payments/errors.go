package payments

import (
	"errors"
	"net/http"
)

// Kind classifies a payment error for the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
	KindContextNotFound
	KindSecurity
	KindProvider
)

// Error is a classified payment failure. Message is safe to return to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// HTTPStatus maps an error to its HTTP status code.
func HTTPStatus(err error) int {
	var pe *Error
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError
	}
	switch pe.Kind {
	case KindInvalidInput, KindSecurity:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindContextNotFound:
		return http.StatusUnprocessableEntity
	case KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Kind != KindInternal {
		return pe.Message
	}
	return "internal error"
}
