// Package apperr defines the errors tool handlers return to signal a
// business-level failure.
//
// Every error carries an HTTP-style status and a message meant for the
// caller. The MCP server translates the status into a JSON-RPC error code
// and forwards the message verbatim; wrapped causes are never sent.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:     "internal",
	KindBadRequest:   "bad_request",
	KindUnauthorized: "unauthorized",
	KindForbidden:    "forbidden",
	KindNotFound:     "not_found",
	KindConflict:     "conflict",
	KindRateLimited:  "rate_limited",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a business error with a status and a caller-facing message.
type Error struct {
	Status  int
	Message string
	cause   error
}

// New creates an Error with an arbitrary status.
func New(status int, msg string) *Error {
	return &Error{Status: status, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records cause for logging. The cause is
// reachable through errors.Unwrap but is not part of Message.
func Wrap(status int, msg string, cause error) *Error {
	return &Error{Status: status, Message: msg, cause: cause}
}

// BadRequest reports malformed call arguments (400).
func BadRequest(msg string) *Error { return New(http.StatusBadRequest, msg) }

// Unauthorized reports a missing or invalid caller identity (401).
func Unauthorized(msg string) *Error { return New(http.StatusUnauthorized, msg) }

// Forbidden reports a caller that may not perform the operation (403).
func Forbidden(msg string) *Error { return New(http.StatusForbidden, msg) }

// NotFound reports an unknown target (404).
func NotFound(msg string) *Error { return New(http.StatusNotFound, msg) }

// Conflict reports a state conflict such as a duplicate (409).
func Conflict(msg string) *Error { return New(http.StatusConflict, msg) }

// RateLimited reports throttling (429).
func RateLimited(msg string) *Error { return New(http.StatusTooManyRequests, msg) }

// Internal reports an unclassified failure (500).
func Internal(msg string) *Error { return New(http.StatusInternalServerError, msg) }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (status %d): %v", e.Message, e.Status, e.cause)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Unwrap returns the recorded cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status carried by the error.
func (e *Error) HTTPStatus() int { return e.Status }

// Kind classifies the error by its status.
func (e *Error) Kind() Kind {
	switch e.Status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindInternal
	}
}

// Is matches another *Error with the same status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Status == t.Status
}

// StatusError is implemented by any error that carries an HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

// As finds the first error in err's chain that carries an HTTP status.
func As(err error) (StatusError, bool) {
	var se StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// KindOf classifies err. Errors without a status are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	if se, ok := As(err); ok {
		return New(se.HTTPStatus(), "").Kind()
	}
	return KindInternal
}
