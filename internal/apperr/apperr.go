// Package apperr defines the error kinds surfaced through the API envelope
// and their HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("authentication error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrUnknown    = errors.New("unknown error")
)

// Error carries a caller-facing message together with one of the kind sentinels.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" && e.Kind != nil {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func Validation(msg string) *Error { return &Error{Kind: ErrValidation, Message: msg} }
func Auth(msg string) *Error       { return &Error{Kind: ErrAuth, Message: msg} }
func NotFound(msg string) *Error   { return &Error{Kind: ErrNotFound, Message: msg} }
func Conflict(msg string) *Error   { return &Error{Kind: ErrConflict, Message: msg} }
func Unknown(msg string) *Error    { return &Error{Kind: ErrUnknown, Message: msg} }

// Status maps err to the HTTP status of its kind. Errors without a kind are 500.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing text for err. Unclassified errors surface
// their own message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
