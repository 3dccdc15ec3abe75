// Package apperr defines the closed error taxonomy used across the billing
// service. Every operation surfaces one of these kinds at its boundary so
// callers always receive a structured result with a status code instead of a
// raw failure.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the recognized failure categories.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindGateway
	KindInternal
	KindNotImplemented
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway"
	case KindNotImplemented:
		return "not_implemented"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to its HTTP-style status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	case KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind, a caller-safe message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newError(KindConflict, format, args...)
}

func Gateway(format string, args ...interface{}) *Error {
	return newError(KindGateway, format, args...)
}

func Internal(format string, args ...interface{}) *Error {
	return newError(KindInternal, format, args...)
}

func NotImplemented(format string, args ...interface{}) *Error {
	return newError(KindNotImplemented, format, args...)
}

// Wrap attaches a cause to a kinded error. The message is what callers see;
// the cause stays server-side.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	e := newError(kind, format, args...)
	e.Err = err
	return e
}

// KindOf extracts the kind from err, defaulting to KindInternal for
// unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the caller-safe message for err. Unclassified errors get
// a generic message so internal details never leak verbatim.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == KindInternal && ae.Err != nil {
			return ae.Message
		}
		return ae.Message
	}
	return "internal server error"
}
