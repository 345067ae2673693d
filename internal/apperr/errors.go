// Package apperr defines the error kinds surfaced to API callers and their
// HTTP status mapping.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindUnauthenticated   Kind = "unauthenticated"
	KindInvalidCredential Kind = "invalid_credential"
	KindInvalidInput      Kind = "invalid_input"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindUploadFailed      Kind = "upload_failed"
	KindInternal          Kind = "internal"
)

// Status maps the kind to the HTTP status returned to clients.
func (k Kind) Status() int {
	switch k {
	case KindUnauthenticated, KindInvalidCredential:
		return http.StatusUnauthorized
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind and a client-safe message. Err holds the underlying
// cause for logging and is never rendered to clients.
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

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthenticated(message string) *Error   { return New(KindUnauthenticated, message) }
func InvalidCredential(message string) *Error { return New(KindInvalidCredential, message) }
func InvalidInput(message string) *Error      { return New(KindInvalidInput, message) }
func Forbidden(message string) *Error         { return New(KindForbidden, message) }
func NotFound(message string) *Error          { return New(KindNotFound, message) }
func UploadFailed(message string) *Error      { return New(KindUploadFailed, message) }

// Internal wraps an unexpected failure behind a generic message.
func Internal(err error) *Error {
	return Wrap(KindInternal, "internal server error", err)
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// Message returns the client-safe message for err.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal server error"
}
