package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

const maxResponseSize = 50 << 20

// HTTPTransport posts each envelope to a single MCP endpoint.
type HTTPTransport struct {
	url    string
	client *http.Client
	header http.Header
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = hc
	}
}

// WithBearerToken sends token in the Authorization header.
func WithBearerToken(token string) HTTPOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithHeader sends a fixed header with every envelope.
func WithHeader(key, value string) HTTPOption {
	return func(t *HTTPTransport) {
		t.header.Set(key, value)
	}
}

// NewHTTPTransport creates a transport posting to url, for example
// http://localhost:8080/mcp.
func NewHTTPTransport(url string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewHTTP is shorthand for New(NewHTTPTransport(url, httpOpts...)).
func NewHTTP(url string, httpOpts []HTTPOption, opts ...Option) *Client {
	return New(NewHTTPTransport(url, httpOpts...), opts...)
}

// Send posts req. A 204 reply yields nil; any status other than 200 or
// 204 is an error.
func (t *HTTPTransport) Send(ctx context.Context, req *protocol.Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, vals := range t.header {
		httpReq.Header[k] = vals
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("server request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if req.IsNotification() {
			return nil, nil
		}
		return body, nil
	case http.StatusNoContent:
		if !req.IsNotification() {
			return nil, fmt.Errorf("server sent no response to %s", req.Method)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected HTTP status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
