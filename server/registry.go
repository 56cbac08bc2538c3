package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/openapi-mcp/middleware"
	"github.com/felixgeelhaar/openapi-mcp/schema"
)

// ToolName identifies a tool in the registry. It matches schema.Tool.Name.
type ToolName string

// ToolHandler executes a tool call.
//
// args is the decoded "arguments" object of the call and is never nil.
// The returned value is sent back to the client as the JSON-RPC result.
type ToolHandler interface {
	CallTool(ctx context.Context, args map[string]any) (any, error)
}

// ToolHandlerFunc adapts an ordinary function to ToolHandler.
type ToolHandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// CallTool calls f(ctx, args).
func (f ToolHandlerFunc) CallTool(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Registry maps tool names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[ToolName]ToolHandler
	logger   middleware.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used to report replaced handlers.
func WithRegistryLogger(l middleware.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		handlers: make(map[ToolName]ToolHandler),
		logger:   middleware.NopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds h to name. A later registration for the same name
// replaces the earlier one.
func (r *Registry) Register(name ToolName, h ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		r.logger.Warn("tool handler replaced", middleware.F("tool", string(name)))
	}
	r.handlers[name] = h
}

// RegisterFunc binds fn to name.
func (r *Registry) RegisterFunc(name ToolName, fn func(ctx context.Context, args map[string]any) (any, error)) {
	r.Register(name, ToolHandlerFunc(fn))
}

// Lookup returns the handler bound to name.
func (r *Registry) Lookup(name ToolName) (ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Has reports whether a handler is bound to name. It fits
// middleware.RateLimitByTool's known argument.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(ToolName(name))
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []ToolName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]ToolName, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// MismatchError reports tools that are compiled but have no handler, and
// handlers that have no compiled tool.
type MismatchError struct {
	Unhandled  []string
	Uncompiled []string
}

func (e *MismatchError) Error() string {
	var parts []string
	if len(e.Unhandled) > 0 {
		parts = append(parts, "no handler for: "+strings.Join(e.Unhandled, ", "))
	}
	if len(e.Uncompiled) > 0 {
		parts = append(parts, "no compiled tool for: "+strings.Join(e.Uncompiled, ", "))
	}
	return fmt.Sprintf("tool registry mismatch: %s", strings.Join(parts, "; "))
}

// Validate checks that every compiled tool has a handler and every handler
// has a compiled tool. It returns a *MismatchError listing both sides, or nil.
func (r *Registry) Validate(tools []schema.Tool) error {
	compiled := make(map[string]bool, len(tools))
	var unhandled []string
	for _, t := range tools {
		if compiled[t.Name] {
			continue
		}
		compiled[t.Name] = true
		if _, ok := r.Lookup(ToolName(t.Name)); !ok {
			unhandled = append(unhandled, t.Name)
		}
	}

	var uncompiled []string
	for _, n := range r.Names() {
		if !compiled[string(n)] {
			uncompiled = append(uncompiled, string(n))
		}
	}

	if len(unhandled) == 0 && len(uncompiled) == 0 {
		return nil
	}
	sort.Strings(unhandled)
	return &MismatchError{Unhandled: unhandled, Uncompiled: uncompiled}
}
