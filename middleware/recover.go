package middleware

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

// PanicHandler is called when a panic is recovered.
type PanicHandler func(ctx context.Context, req *protocol.Request, panicVal any) (*protocol.Response, error)

// Recover returns middleware that catches panics and converts them to
// internal errors. The panic value never reaches the client.
func Recover() Middleware {
	return RecoverWithLogger(NopLogger{})
}

// RecoverWithLogger is Recover with the panic value logged at error level.
func RecoverWithLogger(logger Logger) Middleware {
	return RecoverWithHandler(func(ctx context.Context, req *protocol.Request, panicVal any) (*protocol.Response, error) {
		fields := []Field{
			F("method", req.Method),
			F("panic", fmt.Sprint(panicVal)),
		}
		if tool := ToolName(req); tool != "" {
			fields = append(fields, F("tool", tool))
		}
		if id := RequestIDFromContext(ctx); id != "" {
			fields = append(fields, F("request_id", id))
		}
		logger.Error("panic recovered", fields...)
		return nil, protocol.NewInternalError("internal error")
	})
}

// RecoverWithHandler returns middleware that catches panics and calls the provided handler.
func RecoverWithHandler(handler PanicHandler) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (resp *protocol.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp, err = handler(ctx, req, r)
				}
			}()
			return next(ctx, req)
		}
	}
}
