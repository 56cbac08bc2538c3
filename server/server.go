package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/openapi-mcp/apperr"
	"github.com/felixgeelhaar/openapi-mcp/middleware"
	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

const (
	catalogUnavailable = "tool catalog unavailable"
	internalError      = "internal error"
)

// Info contains server metadata exposed to clients.
type Info struct {
	Name    string
	Version string
}

// Option configures a Server.
type Option func(*Server)

// WithCatalog sets the tool catalog. Without one the server lists no tools.
func WithCatalog(c *Catalog) Option {
	return func(s *Server) {
		s.catalog = c
	}
}

// WithRegistry sets the handler registry.
func WithRegistry(r *Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithLogger sets the server logger.
func WithLogger(l middleware.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithArgumentValidation checks call arguments against the compiled
// parameter schema before the handler runs.
func WithArgumentValidation() Option {
	return func(s *Server) {
		s.validateArgs = true
	}
}

// Server is the MCP server instance. It implements transport.Handler.
type Server struct {
	info         Info
	catalog      *Catalog
	registry     *Registry
	logger       middleware.Logger
	validateArgs bool

	mu         sync.RWMutex
	middleware []middleware.Middleware
}

// New creates a new MCP server with the given info and options.
func New(info Info, opts ...Option) *Server {
	s := &Server{
		info:   info,
		logger: middleware.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		s.catalog = NewCatalog(StaticDocument(nil))
	}
	if s.registry == nil {
		s.registry = NewRegistry(WithRegistryLogger(s.logger))
	}
	return s
}

// Info returns the server info.
func (s *Server) Info() Info {
	return s.info
}

// Catalog returns the tool catalog.
func (s *Server) Catalog() *Catalog {
	return s.catalog
}

// Registry returns the handler registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Use registers middleware to be executed on every request.
func (s *Server) Use(m ...middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, m...)
}

// HandleRequest dispatches one JSON-RPC message.
//
// Failures are returned as *protocol.Error values; the transport turns them
// into error responses. Notifications yield a nil response.
func (s *Server) HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	s.mu.RLock()
	chain := s.middleware
	s.mu.RUnlock()

	if len(chain) == 0 {
		return s.dispatch(ctx, req)
	}
	return middleware.Chain(chain...)(s.dispatch)(ctx, req)
}

func (s *Server) dispatch(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		return s.handleInitialize(req)
	case protocol.MethodInitialized:
		return nil, nil
	case protocol.MethodPing:
		return protocol.NewResponse(req.ID, map[string]any{}), nil
	case protocol.MethodToolsList:
		return s.handleToolsList(ctx, req)
	case protocol.MethodToolsCall:
		return s.handleToolsCall(ctx, req)
	default:
		if req.IsNotification() {
			return nil, nil
		}
		return nil, protocol.NewMethodNotFound(req.Method)
	}
}

func (s *Server) handleInitialize(req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, protocol.NewInvalidParams(err.Error())
		}
	}

	version := params.ProtocolVersion
	if version == "" {
		version = protocol.MCPVersion
	}
	s.logger.Info("client initialized",
		middleware.F("client", params.ClientInfo.Name),
		middleware.F("client_version", params.ClientInfo.Version),
		middleware.F("protocol_version", version),
	)

	result := map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.info.Name,
			"version": s.info.Version,
		},
	}
	return protocol.NewResponse(req.ID, result), nil
}

func (s *Server) handleToolsList(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	tools, err := s.catalog.Tools(ctx)
	if err != nil {
		s.logger.Error("tool catalog load failed", middleware.F("error", err.Error()))
		return nil, protocol.NewInternalError(catalogUnavailable)
	}
	return protocol.NewResponse(req.ID, map[string]any{"tools": tools}), nil
}

func (s *Server) handleToolsCall(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, protocol.NewInvalidParams(err.Error())
		}
	}
	if params.Name == "" {
		return nil, protocol.NewInvalidParams("missing tool name")
	}

	tool, compiled, err := s.catalog.Tool(ctx, params.Name)
	if err != nil {
		s.logger.Error("tool catalog load failed", middleware.F("error", err.Error()))
		return nil, protocol.NewInternalError(catalogUnavailable)
	}
	handler, registered := s.registry.Lookup(ToolName(params.Name))
	if !compiled || !registered {
		return nil, protocol.NewMethodNotFound(params.Name)
	}

	args := params.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if s.validateArgs {
		if err := tool.Validate(args); err != nil {
			return nil, protocol.NewInvalidParams(fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	result, err := handler.CallTool(ctx, args)
	if err != nil {
		return nil, s.toolError(params.Name, err)
	}
	return protocol.NewResponse(req.ID, result), nil
}

// toolError converts a handler failure into the error sent to the client.
// Business errors keep their message; anything else is reported generically
// and logged.
func (s *Server) toolError(tool string, err error) *protocol.Error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if cause := errors.Unwrap(appErr); cause != nil {
			s.logger.Debug("tool failed",
				middleware.F("tool", tool),
				middleware.F("status", appErr.Status),
				middleware.F("error", cause.Error()),
			)
		}
		return protocol.NewHTTPStatusError(appErr.Status, appErr.Message)
	}
	if se, ok := apperr.As(err); ok {
		return protocol.NewHTTPStatusError(se.HTTPStatus(), se.Error())
	}

	s.logger.Error("tool failed",
		middleware.F("tool", tool),
		middleware.F("error", err.Error()),
	)
	return &protocol.Error{Code: protocol.CodeServerError, Message: internalError}
}
