package transport

import (
	"context"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

// Handler processes incoming MCP requests.
type Handler interface {
	HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// HandlerFunc is an adapter to allow ordinary functions as handlers.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// HandleRequest calls f(ctx, req).
func (f HandlerFunc) HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return f(ctx, req)
}

// Transport defines the communication layer interface.
type Transport interface {
	// Serve starts the transport, blocking until ctx is canceled or an error occurs.
	Serve(ctx context.Context, handler Handler) error

	// Addr returns the transport's address description.
	Addr() string
}

// Dispatch normalizes req, injects identity and runs handler. It returns
// the message to send back, or nil when req is a notification.
//
// Handler errors become error responses keyed by the request ID. A request
// that carries an ID always gets a response, even if the handler produced
// none.
func Dispatch(ctx context.Context, handler Handler, req *protocol.Request, identity Identity) *protocol.Response {
	if err := Normalize(req, identity); err != nil {
		if req.IsNotification() {
			return nil
		}
		return protocol.NewErrorResponse(req.ID, protocol.AsError(err))
	}
	if identity != nil {
		ctx = ContextWithIdentity(ctx, identity)
	}

	resp, err := handler.HandleRequest(ctx, req)
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.AsError(err))
	}
	if resp == nil {
		return protocol.NewResponse(req.ID, map[string]any{})
	}
	if len(resp.ID) == 0 {
		resp.ID = req.ID
	}
	return resp
}
