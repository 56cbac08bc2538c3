// Package testutil provides helpers for testing MCP tool servers.
//
// TestClient drives a transport.Handler in memory through the same
// normalization and error handling as the network transports:
//
//	func TestAccounts(t *testing.T) {
//	    srv, _ := testutil.AccountsServer()
//	    tc := testutil.NewTestClient(t, srv)
//
//	    result, err := tc.CallTool("get_accounts_id", map[string]any{"account_id": "acc-1"})
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    _ = result
//	}
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/felixgeelhaar/openapi-mcp/client"
	"github.com/felixgeelhaar/openapi-mcp/protocol"
	"github.com/felixgeelhaar/openapi-mcp/schema"
	"github.com/felixgeelhaar/openapi-mcp/transport"
)

// TestClient is an in-memory MCP client.
type TestClient struct {
	t        testing.TB
	handler  transport.Handler
	identity transport.Identity
	skipInit bool
	reqID    int64
	mu       sync.Mutex
}

// ClientOption configures a TestClient.
type ClientOption func(*TestClient)

// WithIdentity injects id as userInfo into every envelope, as an identity
// resolver would.
func WithIdentity(id transport.Identity) ClientOption {
	return func(tc *TestClient) {
		tc.identity = id
	}
}

// WithoutInitialize skips the handshake NewTestClient performs.
func WithoutInitialize() ClientOption {
	return func(tc *TestClient) {
		tc.skipInit = true
	}
}

// NewTestClient creates a client for handler and performs the MCP
// handshake unless WithoutInitialize is given.
func NewTestClient(t testing.TB, handler transport.Handler, opts ...ClientOption) *TestClient {
	t.Helper()

	tc := &TestClient{t: t, handler: handler}
	for _, opt := range opts {
		opt(tc)
	}

	if tc.skipInit {
		return tc
	}
	if _, err := tc.Initialize(); err != nil {
		t.Fatalf("failed to initialize server: %v", err)
	}
	if err := tc.Notify(protocol.MethodInitialized, nil); err != nil {
		t.Fatalf("initialized notification: %v", err)
	}
	return tc
}

func (tc *TestClient) nextID() json.RawMessage {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.reqID++
	return json.RawMessage(fmt.Sprintf("%d", tc.reqID))
}

// SendRequest sends a request and returns the response envelope after a
// JSON round trip, exactly as a network client would see it.
func (tc *TestClient) SendRequest(method string, params any) (*protocol.Response, error) {
	tc.t.Helper()

	req, err := buildRequest(tc.nextID(), method, params)
	if err != nil {
		return nil, err
	}
	resp := transport.Dispatch(context.Background(), tc.handler, req, tc.identity)
	if resp == nil {
		return nil, fmt.Errorf("no response to %s", method)
	}
	return roundTrip(resp)
}

// Notify sends a notification. Any response the handler produces is
// reported as an error.
func (tc *TestClient) Notify(method string, params any) error {
	tc.t.Helper()

	req, err := buildRequest(nil, method, params)
	if err != nil {
		return err
	}
	if resp := transport.Dispatch(context.Background(), tc.handler, req, tc.identity); resp != nil {
		return fmt.Errorf("notification %s answered: %+v", method, resp)
	}
	return nil
}

// Initialize sends an initialize request and returns its result.
func (tc *TestClient) Initialize() (map[string]any, error) {
	tc.t.Helper()

	var result map[string]any
	err := tc.call(protocol.MethodInitialize, map[string]any{
		"protocolVersion": protocol.MCPVersion,
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "1.0.0",
		},
	}, &result)
	return result, err
}

// ListTools returns the advertised tool definitions.
func (tc *TestClient) ListTools() ([]schema.Tool, error) {
	tc.t.Helper()

	var result struct {
		Tools []schema.Tool `json:"tools"`
	}
	if err := tc.call(protocol.MethodToolsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool calls a tool and returns its decoded result. JSON-RPC errors
// are returned as *protocol.Error.
func (tc *TestClient) CallTool(name string, args any) (any, error) {
	tc.t.Helper()

	var result any
	err := tc.call(protocol.MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
	}, &result)
	return result, err
}

// Ping sends a ping request.
func (tc *TestClient) Ping() error {
	tc.t.Helper()
	return tc.call(protocol.MethodPing, nil, nil)
}

// AssertToolExists fails the test if no advertised tool has name.
func (tc *TestClient) AssertToolExists(name string) {
	tc.t.Helper()

	tools, err := tc.ListTools()
	if err != nil {
		tc.t.Fatalf("failed to list tools: %v", err)
	}
	for _, tool := range tools {
		if tool.Name == name {
			return
		}
	}
	tc.t.Errorf("tool %q not found", name)
}

func (tc *TestClient) call(method string, params, out any) error {
	resp, err := tc.SendRequest(method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return json.Unmarshal(data, out)
}

// AssertErrorCode fails the test unless err is a *protocol.Error with code.
func AssertErrorCode(t testing.TB, err error, code int) *protocol.Error {
	t.Helper()

	rpcErr, ok := err.(*protocol.Error)
	if !ok {
		t.Fatalf("error = %v (%T), want *protocol.Error with code %d", err, err, code)
	}
	if rpcErr.Code != code {
		t.Fatalf("error code = %d (%s), want %d", rpcErr.Code, rpcErr.Message, code)
	}
	return rpcErr
}

// Transport is a client.Transport that dispatches to a handler in memory.
type Transport struct {
	Handler  transport.Handler
	Identity transport.Identity
}

var _ client.Transport = (*Transport)(nil)

// Send dispatches req and returns the encoded response.
func (m *Transport) Send(ctx context.Context, req *protocol.Request) ([]byte, error) {
	copied := *req
	resp := transport.Dispatch(ctx, m.Handler, &copied, m.Identity)
	if resp == nil {
		return nil, nil
	}
	return json.Marshal(resp)
}

// Close is a no-op.
func (m *Transport) Close() error { return nil }

// NewClient returns a client.Client wired to handler in memory.
func NewClient(handler transport.Handler, opts ...client.Option) *client.Client {
	return client.New(&Transport{Handler: handler}, opts...)
}

func buildRequest(id json.RawMessage, method string, params any) (*protocol.Request, error) {
	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      id,
		Method:  method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = data
	}
	return req, nil
}

func roundTrip(resp *protocol.Response) (*protocol.Response, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	var decoded struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  any             `json:"result"`
		Error   *protocol.Error `json:"error"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &protocol.Response{
		JSONRPC: decoded.JSONRPC,
		ID:      decoded.ID,
		Result:  decoded.Result,
		Error:   decoded.Error,
	}, nil
}
