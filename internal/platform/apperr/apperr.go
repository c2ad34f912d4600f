// Package apperr defines the error kinds returned by domain services and
// their translation to HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindState
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindInfrastructure:
		return "infrastructure"
	case KindUnknown:
		return "unknown"
	}
	return "unknown"
}

// HTTPStatus returns the status code a handler should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindState:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInfrastructure, KindUnknown:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// Error is a classified error with a user-facing reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and reason, so sentinel
// values survive being re-created with a wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

func Validation(reason string) *Error { return &Error{Kind: KindValidation, Reason: reason} }
func NotFound(reason string) *Error   { return &Error{Kind: KindNotFound, Reason: reason} }
func Conflict(reason string) *Error   { return &Error{Kind: KindConflict, Reason: reason} }
func State(reason string) *Error      { return &Error{Kind: KindState, Reason: reason} }

// Infrastructure wraps a storage or network failure.
func Infrastructure(err error) *Error {
	return &Error{Kind: KindInfrastructure, Reason: "storage unavailable", Err: err}
}

// Wrap attaches a cause to a sentinel while keeping its kind and reason.
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Reason: sentinel.Reason, Err: err}
}

// KindOf returns the kind of err, KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// HTTPError converts err into an echo.HTTPError. Infrastructure and
// unclassified errors never leak their cause to the client.
func HTTPError(err error) *echo.HTTPError {
	var ae *Error
	if !errors.As(err, &ae) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	msg := ae.Reason
	if ae.Kind == KindInfrastructure {
		msg = "internal server error"
	}
	return echo.NewHTTPError(ae.Kind.HTTPStatus(), msg).SetInternal(err)
}
