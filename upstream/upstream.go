// Package upstream forwards tool calls to the REST API an OpenAPI
// document describes.
//
// Each compiled tool carries the route it came from. The handler built for
// it substitutes path parameters, sets query and header parameters and
// sends the remaining arguments as the JSON body. Upstream 4xx/5xx replies
// become apperr errors so the MCP server maps them to JSON-RPC codes.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/felixgeelhaar/openapi-mcp/apperr"
	"github.com/felixgeelhaar/openapi-mcp/middleware"
	"github.com/felixgeelhaar/openapi-mcp/schema"
	"github.com/felixgeelhaar/openapi-mcp/server"
	"github.com/felixgeelhaar/openapi-mcp/transport"
)

// DefaultMaxResponseBytes caps how much of an upstream reply is read.
const DefaultMaxResponseBytes = 10 << 20

// ErrBaseURL is returned by New for a base URL without scheme or host.
var ErrBaseURL = errors.New("upstream base URL must be absolute")

// Client calls the upstream API on behalf of tool handlers.
type Client struct {
	base             *url.URL
	http             *http.Client
	logger           middleware.Logger
	headers          http.Header
	identityHeader   string
	propagator       propagation.TextMapPropagator
	maxResponseBytes int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the shared http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-call timeout of the shared http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithLogger sets the logger for upstream calls.
func WithLogger(l middleware.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithHeader adds a static header to every upstream request, such as an
// API key.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// WithIdentityHeader forwards the caller identity to the API as JSON in
// the named header. Without it the identity is only dropped from the body.
func WithIdentityHeader(name string) Option {
	return func(c *Client) {
		c.identityHeader = name
	}
}

// WithPropagator sets the propagator used to inject trace context.
// Defaults to the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) {
		c.propagator = p
	}
}

// WithMaxResponseBytes caps the size of upstream replies.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		c.maxResponseBytes = n
	}
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBaseURL, baseURL)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	c := &Client{
		base:             base,
		http:             &http.Client{Timeout: 30 * time.Second},
		logger:           middleware.NopLogger{},
		headers:          make(http.Header),
		maxResponseBytes: DefaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.propagator == nil {
		c.propagator = otel.GetTextMapPropagator()
	}
	return c, nil
}

// BaseURL returns the API root calls are sent to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Handler returns a handler that forwards calls of tool to its route.
func (c *Client) Handler(tool schema.Tool) server.ToolHandler {
	route := tool.Route
	name := tool.Name
	return server.ToolHandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		return c.Call(ctx, name, route, args)
	})
}

// RegisterAll registers a forwarding handler for every tool. When two tools
// share a name the first one is registered, matching the catalog lookup.
// It returns the number of handlers registered.
func (c *Client) RegisterAll(reg *server.Registry, tools []schema.Tool) int {
	seen := make(map[string]bool, len(tools))
	for _, tool := range tools {
		if seen[tool.Name] {
			continue
		}
		seen[tool.Name] = true
		reg.Register(server.ToolName(tool.Name), c.Handler(tool))
	}
	return len(seen)
}

// Call sends one tool call to route and decodes the reply.
func (c *Client) Call(ctx context.Context, tool string, route schema.Route, args map[string]any) (any, error) {
	req, err := c.buildRequest(ctx, route, args)
	if err != nil {
		return nil, err
	}

	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	middleware.AddSpanEvent(ctx, "upstream.request",
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
		attribute.String("mcp.tool", tool),
	)

	c.logger.Debug("upstream request",
		middleware.F("tool", tool),
		middleware.F("method", req.Method),
		middleware.F("path", req.URL.Path),
	)

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("upstream request failed",
			middleware.F("tool", tool),
			middleware.F("duration_ms", duration.Milliseconds()),
			middleware.F("error", err.Error()),
		)
		return nil, apperr.Wrap(http.StatusBadGateway, "upstream unavailable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes))
	if err != nil {
		return nil, apperr.Wrap(http.StatusBadGateway, "reading upstream response", err)
	}

	middleware.AddSpanEvent(ctx, "upstream.response",
		attribute.Int("http.response.status_code", resp.StatusCode),
	)
	c.logger.Debug("upstream response",
		middleware.F("tool", tool),
		middleware.F("status", resp.StatusCode),
		middleware.F("duration_ms", duration.Milliseconds()),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apperr.New(resp.StatusCode, errorMessage(resp.StatusCode, body))
	}
	return decodeBody(resp.Header.Get("Content-Type"), body), nil
}

func (c *Client) buildRequest(ctx context.Context, route schema.Route, args map[string]any) (*http.Request, error) {
	consumed := map[string]bool{transport.UserInfoKey: true}

	path := route.Path
	for _, name := range route.ParamsIn("path") {
		consumed[name] = true
		value, ok := args[name]
		if !ok || value == nil {
			return nil, apperr.BadRequest("missing path parameter: " + name)
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(scalar(value)))
	}

	target := *c.base
	escaped := c.base.EscapedPath() + path
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, apperr.Wrap(http.StatusBadRequest, "invalid path", err)
	}
	target.Path = unescaped
	target.RawPath = escaped

	query := target.Query()
	for _, name := range route.ParamsIn("query") {
		consumed[name] = true
		value, ok := args[name]
		if !ok || value == nil {
			continue
		}
		if list, isList := value.([]any); isList {
			for _, item := range list {
				query.Add(name, scalar(item))
			}
			continue
		}
		query.Set(name, scalar(value))
	}
	target.RawQuery = query.Encode()

	var body io.Reader
	if route.HasBody {
		payload := make(map[string]any, len(args))
		for k, v := range args {
			if !consumed[k] && !isHeaderParam(route, k) {
				payload[k] = v
			}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, apperr.Wrap(http.StatusBadRequest, "arguments are not JSON encodable", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}

	for k, vals := range c.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, name := range route.ParamsIn("header") {
		if value, ok := args[name]; ok && value != nil {
			req.Header.Set(name, scalar(value))
		}
	}
	if c.identityHeader != "" {
		if info, ok := args[transport.UserInfoKey]; ok && info != nil {
			if data, err := json.Marshal(info); err == nil {
				req.Header.Set(c.identityHeader, string(data))
			}
		}
	}
	return req, nil
}

func isHeaderParam(route schema.Route, name string) bool {
	for _, p := range route.Params {
		if p.Name == name && (p.In == "header" || p.In == "cookie") {
			return true
		}
	}
	return false
}

// scalar renders an argument value for a path, query or header slot.
func scalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool, int, int64:
		return fmt.Sprint(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// errorMessage extracts a caller-facing message from an error reply.
func errorMessage(status int, body []byte) string {
	var payload map[string]any
	if json.Unmarshal(body, &payload) == nil {
		for _, key := range []string{"message", "error", "detail", "title"} {
			if msg, ok := payload[key].(string); ok && msg != "" {
				return msg
			}
		}
		if nested, ok := payload["error"].(map[string]any); ok {
			if msg, ok := nested["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "<") {
		return text
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("upstream status %d", status)
}

// decodeBody returns JSON replies decoded and anything else as text.
func decodeBody(contentType string, body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}
	}
	var v any
	if json.Unmarshal(body, &v) == nil {
		return v
	}
	return map[string]any{"contentType": contentType, "text": string(body)}
}
