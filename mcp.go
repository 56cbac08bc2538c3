// Package mcp exposes an OpenAPI-described HTTP API to LLM agents as MCP
// tools.
//
// The OpenAPI document is compiled into tool definitions on first use.
// Each tool call is dispatched to a registered handler, and business
// errors carrying an HTTP status are translated into JSON-RPC error codes.
//
// Serving a document whose operations are forwarded to the real API:
//
//	api, _ := upstream.New("https://api.example.com")
//	srv, err := mcp.NewGateway(ctx, mcp.ServerInfo{Name: "crm", Version: "1.0.0"},
//	    mcp.FileLoader("openapi.yaml"), api)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mcp.ServeHTTP(ctx, srv, ":8080")
//
// Handlers can also be registered directly:
//
//	reg := mcp.NewRegistry()
//	reg.RegisterFunc("get_accounts_id", func(ctx context.Context, args map[string]any) (any, error) {
//	    return nil, mcp.NotFound("Account not found")
//	})
//	srv := mcp.NewServer(info, mcp.WithCatalog(mcp.NewCatalog(mcp.FileLoader("openapi.yaml"))), mcp.WithRegistry(reg))
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/openapi-mcp/apperr"
	"github.com/felixgeelhaar/openapi-mcp/middleware"
	"github.com/felixgeelhaar/openapi-mcp/schema"
	"github.com/felixgeelhaar/openapi-mcp/server"
	"github.com/felixgeelhaar/openapi-mcp/transport"
	"github.com/felixgeelhaar/openapi-mcp/upstream"
)

// ServerInfo contains server metadata exposed to clients.
type ServerInfo = server.Info

// Server is the MCP server instance.
type Server = server.Server

// Option configures a Server.
type Option = server.Option

// Tool types
type (
	Tool            = schema.Tool
	Document        = schema.Document
	ToolName        = server.ToolName
	ToolHandler     = server.ToolHandler
	ToolHandlerFunc = server.ToolHandlerFunc
	Registry        = server.Registry
	Catalog         = server.Catalog
	Loader          = server.Loader
)

// Server construction re-exports.
var (
	WithCatalog            = server.WithCatalog
	WithRegistry           = server.WithRegistry
	WithServerLogger       = server.WithLogger
	WithArgumentValidation = server.WithArgumentValidation
	NewRegistry            = server.NewRegistry
	NewCatalog             = server.NewCatalog
	StaticDocument         = server.StaticDocument
	FileLoader             = server.FileLoader
	LoadDocument           = schema.Load
	LoadDocumentFile       = schema.LoadFile
	Compile                = schema.Compile
)

// Typed adapts a function taking a decoded argument struct into a
// ToolHandler.
func Typed[In, Out any](fn func(ctx context.Context, in In) (Out, error)) ToolHandler {
	return server.Typed(fn)
}

// Business errors returned by tool handlers.
var (
	BadRequest   = apperr.BadRequest
	Unauthorized = apperr.Unauthorized
	Forbidden    = apperr.Forbidden
	NotFound     = apperr.NotFound
	Conflict     = apperr.Conflict
	RateLimited  = apperr.RateLimited
	Internal     = apperr.Internal
	NewAPIError  = apperr.New
)

// Identity types
type (
	Identity         = transport.Identity
	IdentityResolver = transport.IdentityResolver
)

// Identity resolvers.
var (
	HeaderIdentity      = transport.HeaderIdentity
	BearerJWTIdentity   = transport.BearerJWTIdentity
	StaticTokens        = transport.StaticTokens
	ChainIdentity       = transport.ChainIdentity
	IdentityFromContext = transport.IdentityFromContext
)

// Middleware types
type (
	Middleware            = middleware.Middleware
	MiddlewareHandlerFunc = middleware.HandlerFunc
	Logger                = middleware.Logger
	LogField              = middleware.Field
	RateLimitOption       = middleware.RateLimitOption
	SizeLimitOption       = middleware.SizeLimitOption
)

// Middleware re-exports.
var (
	Chain                = middleware.Chain
	Recover              = middleware.Recover
	RequestID            = middleware.RequestID
	RequestIDFromContext = middleware.RequestIDFromContext
	Logging              = middleware.Logging
	DefaultMiddleware    = middleware.DefaultStack
	NewSlogLogger        = middleware.NewSlogLogger
	OTel                 = middleware.OTel
	LogF                 = middleware.F
	RateLimit            = middleware.RateLimit
	RateLimitByTool      = middleware.RateLimitByTool
	RateLimitByClient    = middleware.RateLimitByClient
	WithRateLimitKeyFunc = middleware.WithRateLimitKeyFunc
	WithRateLimitLogger  = middleware.WithRateLimitLogger
	SizeLimit            = middleware.SizeLimit
	WithSizeLimitLogger  = middleware.WithSizeLimitLogger
)

// Size limit presets.
const (
	KB = middleware.KB
	MB = middleware.MB
)

// NewServer creates a new MCP server with the given info and options.
func NewServer(info ServerInfo, opts ...Option) *Server {
	return server.New(info, opts...)
}

// NewGateway loads the document, registers a forwarding handler for every
// compiled tool and checks that registry and catalog agree. The returned
// server's catalog is already loaded.
func NewGateway(ctx context.Context, info ServerInfo, load Loader, api *upstream.Client, opts ...Option) (*Server, error) {
	catalog := server.NewCatalog(load)
	tools, err := catalog.Tools(ctx)
	if err != nil {
		return nil, err
	}

	reg := server.NewRegistry()
	api.RegisterAll(reg, tools)
	if err := reg.Validate(tools); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	opts = append([]Option{server.WithCatalog(catalog), server.WithRegistry(reg)}, opts...)
	return server.New(info, opts...), nil
}

// ServeOption configures the handler chain a transport runs.
type ServeOption func(*serveOptions)

type serveOptions struct {
	middleware []Middleware
}

// WithMiddleware adds middleware around the server for this transport.
func WithMiddleware(m ...Middleware) ServeOption {
	return func(o *serveOptions) {
		o.middleware = append(o.middleware, m...)
	}
}

// WithLogger installs DefaultMiddleware(l).
func WithLogger(l Logger) ServeOption {
	return WithMiddleware(middleware.DefaultStack(l)...)
}

// Handler returns srv wrapped in the middleware the options select.
func Handler(srv *Server, opts ...ServeOption) transport.Handler {
	var o serveOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.middleware) == 0 {
		return srv
	}
	return transport.HandlerFunc(middleware.Chain(o.middleware...)(srv.HandleRequest))
}

// HTTPOption configures the HTTP transport.
type HTTPOption = transport.HTTPOption

// HTTP transport options.
var (
	WithIdentityResolver = transport.WithIdentityResolver
	WithPath             = transport.WithPath
	WithCORS             = transport.WithCORS
	WithDefaultCORS      = transport.WithDefaultCORS
	WithMaxBodyBytes     = transport.WithMaxBodyBytes
	WithShutdownTimeout  = transport.WithShutdownTimeout
)

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) HTTPOption {
	return transport.WithReadTimeout(d)
}

// WithWriteTimeout sets the write timeout for HTTP responses.
func WithWriteTimeout(d time.Duration) HTTPOption {
	return transport.WithWriteTimeout(d)
}

// ServeHTTP runs the server on the single-endpoint HTTP transport.
// This blocks until the context is canceled or an error occurs.
func ServeHTTP(ctx context.Context, srv *Server, addr string, opts ...HTTPOption) error {
	return transport.NewHTTP(addr, opts...).Serve(ctx, srv)
}

// ServeHTTPWithMiddleware runs the HTTP transport with middleware.
func ServeHTTPWithMiddleware(ctx context.Context, srv *Server, addr string, httpOpts []HTTPOption, serveOpts ...ServeOption) error {
	return transport.NewHTTP(addr, httpOpts...).Serve(ctx, Handler(srv, serveOpts...))
}

// StdioOption configures the stdio transport.
type StdioOption = transport.StdioOption

// ServeStdio runs the server over stdin/stdout.
// This blocks until the context is canceled, stdin is closed or an error occurs.
func ServeStdio(ctx context.Context, srv *Server, opts ...ServeOption) error {
	return transport.NewStdio().Serve(ctx, Handler(srv, opts...))
}

// WebSocketOption configures the WebSocket transport.
type WebSocketOption = transport.WebSocketOption

// ServeWebSocket runs the server using WebSocket transport.
// This blocks until the context is canceled or an error occurs.
func ServeWebSocket(ctx context.Context, srv *Server, addr string, opts ...WebSocketOption) error {
	return transport.NewWebSocket(addr, opts...).Serve(ctx, srv)
}

// ServeWebSocketWithMiddleware runs the WebSocket transport with middleware.
func ServeWebSocketWithMiddleware(ctx context.Context, srv *Server, addr string, wsOpts []WebSocketOption, serveOpts ...ServeOption) error {
	return transport.NewWebSocket(addr, wsOpts...).Serve(ctx, Handler(srv, serveOpts...))
}
