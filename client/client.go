// Package client provides an MCP client for the tool gateway.
//
// The client speaks JSON-RPC over a pluggable Transport. HTTPTransport
// posts one envelope per request to the gateway's endpoint;
// StreamTransport talks newline-delimited JSON over a pipe or a
// subprocess.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
	"github.com/felixgeelhaar/openapi-mcp/schema"
)

// ErrClosed is returned by transports used after Close.
var ErrClosed = errors.New("transport closed")

// Transport carries encoded envelopes to a server.
type Transport interface {
	// Send delivers req and returns the raw response envelope. For a
	// notification it returns nil, nil once the server accepted it.
	Send(ctx context.Context, req *protocol.Request) ([]byte, error)
	// Close releases the transport.
	Close() error
}

// Client is an MCP client.
type Client struct {
	transport Transport
	opts      clientOptions

	mu         sync.RWMutex
	serverInfo *ServerInfo
	requestID  atomic.Int64
}

// ServerInfo describes the server after a successful Initialize.
type ServerInfo struct {
	Name            string
	Version         string
	ProtocolVersion string
	Tools           bool
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout     time.Duration
	clientName  string
	clientVer   string
	protocolVer string
}

// WithTimeout bounds each call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithClientInfo sets the client name and version sent by Initialize.
func WithClientInfo(name, version string) Option {
	return func(o *clientOptions) {
		o.clientName = name
		o.clientVer = version
	}
}

// WithProtocolVersion sets the protocol version requested by Initialize.
func WithProtocolVersion(version string) Option {
	return func(o *clientOptions) {
		o.protocolVer = version
	}
}

// New creates a client over transport.
func New(transport Transport, opts ...Option) *Client {
	options := clientOptions{
		timeout:     30 * time.Second,
		clientName:  "openapi-mcp-client",
		clientVer:   "1.0.0",
		protocolVer: protocol.MCPVersion,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		transport: transport,
		opts:      options,
	}
}

// Initialize performs the MCP handshake and then sends
// notifications/initialized.
func (c *Client) Initialize(ctx context.Context) (*ServerInfo, error) {
	params := map[string]any{
		"protocolVersion": c.opts.protocolVer,
		"clientInfo": map[string]any{
			"name":    c.opts.clientName,
			"version": c.opts.clientVer,
		},
		"capabilities": map[string]any{},
	}

	var result struct {
		ProtocolVersion string                     `json:"protocolVersion"`
		Capabilities    map[string]json.RawMessage `json:"capabilities"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := c.call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	_, hasTools := result.Capabilities["tools"]
	info := &ServerInfo{
		Name:            result.ServerInfo.Name,
		Version:         result.ServerInfo.Version,
		ProtocolVersion: result.ProtocolVersion,
		Tools:           hasTools,
	}

	if err := c.notify(ctx, protocol.MethodInitialized); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = info
	c.mu.Unlock()

	return info, nil
}

// ListTools returns the tool definitions the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]schema.Tool, error) {
	var result struct {
		Tools []schema.Tool `json:"tools"`
	}
	if err := c.call(ctx, protocol.MethodToolsList, nil, &result); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	if result.Tools == nil {
		return nil, errors.New("list tools: missing tools in result")
	}
	return result.Tools, nil
}

// CallTool invokes a tool and returns its raw result. A JSON-RPC error
// from the server is returned as a wrapped *protocol.Error.
func (c *Client) CallTool(ctx context.Context, name string, arguments any) (json.RawMessage, error) {
	params := map[string]any{"name": name}
	if arguments != nil {
		params["arguments"] = arguments
	}

	var result json.RawMessage
	if err := c.call(ctx, protocol.MethodToolsCall, params, &result); err != nil {
		return nil, fmt.Errorf("call tool %q: %w", name, err)
	}
	return result, nil
}

// CallToolInto invokes a tool and decodes its result into out.
func (c *Client) CallToolInto(ctx context.Context, name string, arguments, out any) error {
	raw, err := c.CallTool(ctx, name, arguments)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("call tool %q: decoding result: %w", name, err)
	}
	return nil
}

// Ping sends a ping to the server.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.call(ctx, protocol.MethodPing, nil, nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// ServerInfo returns the server info cached by Initialize, or nil.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

type reply struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *protocol.Error `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	id, err := json.Marshal(c.requestID.Add(1))
	if err != nil {
		return fmt.Errorf("marshal request ID: %w", err)
	}
	req, err := newRequest(id, method, params)
	if err != nil {
		return err
	}

	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}

	raw, err := c.transport.Send(ctx, req)
	if err != nil {
		return err
	}

	var resp reply
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}

func (c *Client) notify(ctx context.Context, method string) error {
	req, err := newRequest(nil, method, nil)
	if err != nil {
		return err
	}
	_, err = c.transport.Send(ctx, req)
	return err
}

func newRequest(id json.RawMessage, method string, params any) (*protocol.Request, error) {
	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      id,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}
