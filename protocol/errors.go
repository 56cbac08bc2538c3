// Package protocol implements the MCP protocol layer including JSON-RPC 2.0.
package protocol

import (
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Server error codes translated from HTTP statuses raised by tool handlers.
// They live in the implementation-defined -32000..-32099 range.
const (
	CodeBadRequest       = -32000
	CodeUnauthorized     = -32001
	CodePaymentRequired  = -32002
	CodeForbidden        = -32003
	CodeNotFound         = -32004
	CodeMethodNotAllowed = -32005
	CodeRequestTimeout   = -32008
	CodeConflict         = -32009
	CodeGone             = -32010
	CodeRateLimited      = -32029
	CodeClientError      = -32040
	CodeServerError      = -32099
)

var statusCodes = map[int]int{
	400: CodeBadRequest,
	401: CodeUnauthorized,
	402: CodePaymentRequired,
	403: CodeForbidden,
	404: CodeNotFound,
	405: CodeMethodNotAllowed,
	408: CodeRequestTimeout,
	409: CodeConflict,
	410: CodeGone,
	429: CodeRateLimited,
}

// CodeForHTTPStatus maps an HTTP status raised by a tool handler to its
// JSON-RPC error code. Unlisted 4xx statuses collapse to CodeClientError;
// 5xx and anything unrecognized collapse to CodeServerError.
func CodeForHTTPStatus(status int) int {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return CodeClientError
	}
	return CodeServerError
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("mcp: %s (code: %d)", e.Message, e.Code)
}

// Is implements errors.Is comparison by error code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// AsError extracts a *Error from err, wrapping anything else as an
// internal error carrying err's message.
func AsError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewInternalError(err.Error())
}

// NewParseError creates a parse error (-32700).
func NewParseError(msg string) *Error {
	return &Error{Code: CodeParseError, Message: msg}
}

// NewInvalidRequest creates an invalid request error (-32600).
func NewInvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg}
}

// NewMethodNotFound creates a method not found error (-32601).
func NewMethodNotFound(name string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found: " + name}
}

// NewInvalidParams creates an invalid params error (-32602).
func NewInvalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: msg}
}

// NewInternalError creates an internal error (-32603).
func NewInternalError(msg string) *Error {
	return &Error{Code: CodeInternalError, Message: msg}
}

// NewHTTPStatusError creates an error whose code is derived from an HTTP status.
func NewHTTPStatusError(status int, msg string) *Error {
	return &Error{Code: CodeForHTTPStatus(status), Message: msg}
}

// NewUnauthorized creates an unauthorized error (-32001).
func NewUnauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// NewRateLimited creates a rate limited error (-32029).
func NewRateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, Message: msg}
}
