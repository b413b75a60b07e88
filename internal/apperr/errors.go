// Package apperr defines the error taxonomy shared by the sync components.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrUnauthenticated = errors.New("not logged in")
	ErrTransport       = errors.New("transport error")
	ErrHTTPStatus      = errors.New("unexpected http status")
	ErrDecode          = errors.New("decode error")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
)

// Error carries the kind of a failure together with the operation that
// produced it and the underlying cause.
type Error struct {
	Op     string
	Kind   error
	Status int // HTTP status, when Kind is ErrHTTPStatus or ErrUnauthenticated
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an *Error of the given kind.
func New(op string, kind error, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Status returns an ErrHTTPStatus error for the given code, or an
// ErrUnauthenticated one for 401/403.
func Status(op string, code int) *Error {
	kind := ErrHTTPStatus
	if code == 401 || code == 403 {
		kind = ErrUnauthenticated
	}
	return &Error{Op: op, Kind: kind, Status: code}
}

// Decodef returns an ErrDecode error with a formatted cause.
func Decodef(op, format string, args ...any) *Error {
	return &Error{Op: op, Kind: ErrDecode, Err: fmt.Errorf(format, args...)}
}
