// Package transport carries JSON-RPC envelopes between MCP clients and a
// Handler.
//
// # HTTP
//
// The HTTP transport accepts one envelope per POST on a single path:
//
//	t := transport.NewHTTP(":8080",
//	    transport.WithIdentityResolver(transport.BearerJWTIdentity(secret)),
//	)
//	err := t.Serve(ctx, handler)
//
// Requests are answered with 200 and a JSON-RPC body, notifications with
// 204 and no body. Protocol errors are always reported in the body with
// status 200. GET /health reports liveness.
//
// # Identity
//
// An IdentityResolver turns the HTTP request into an Identity. The
// identity is written to params.arguments.userInfo of every envelope
// before the handler sees it, and is also available through
// IdentityFromContext. A userInfo sent by the client is always discarded.
//
// # Stdio and WebSocket
//
// Stdio reads newline-delimited envelopes from stdin. WebSocket reads one
// envelope per text message and resolves identity once per connection.
// Both share Dispatch with the HTTP transport, so normalization and error
// handling are identical across transports.
package transport
