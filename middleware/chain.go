package middleware

import (
	"context"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

// HandlerFunc is the signature for request handlers.
//
// A handler reports failure by returning a *protocol.Error; the transport
// turns it into a JSON-RPC error response. A nil response with a nil error
// means there is nothing to send back.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes multiple middleware into a single middleware.
// Chain(m1, m2, m3) results in m1 wrapping m2 wrapping m3 wrapping the
// final handler.
func Chain(middlewares ...Middleware) Middleware {
	return func(final HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
