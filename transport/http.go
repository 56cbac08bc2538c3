package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/openapi-mcp/middleware"
	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

// DefaultPath is the endpoint that accepts JSON-RPC envelopes.
const DefaultPath = "/mcp"

// DefaultMaxBodyBytes bounds the size of a request body.
const DefaultMaxBodyBytes = 4 << 20

// HTTP implements the single-endpoint HTTP transport for MCP.
//
// Every envelope is POSTed to one path. Requests are answered with 200 and
// a JSON-RPC response body; notifications are answered with 204 and no body.
type HTTP struct {
	addr         string
	path         string
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxBodyBytes int64

	identity        IdentityResolver
	logger          middleware.Logger
	corsConfig      *CORSConfig
	shutdownTimeout time.Duration
	drainDelay      time.Duration
	shutdown        *ShutdownManager

	mu         sync.RWMutex
	listenAddr string
	server     *http.Server
}

// HTTPOption configures the HTTP transport.
type HTTPOption func(*HTTP)

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.readTimeout = d
	}
}

// WithWriteTimeout sets the write timeout for HTTP responses.
func WithWriteTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.writeTimeout = d
	}
}

// WithPath sets the endpoint path. Default: /mcp.
func WithPath(path string) HTTPOption {
	return func(h *HTTP) {
		h.path = path
	}
}

// WithMaxBodyBytes bounds request bodies. Default: 4 MiB.
func WithMaxBodyBytes(n int64) HTTPOption {
	return func(h *HTTP) {
		h.maxBodyBytes = n
	}
}

// WithIdentityResolver sets how the caller identity is resolved. Without a
// resolver no userInfo is injected, and a client-sent one is still removed.
func WithIdentityResolver(r IdentityResolver) HTTPOption {
	return func(h *HTTP) {
		h.identity = r
	}
}

// WithHTTPLogger sets the logger for transport-level events.
func WithHTTPLogger(l middleware.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = l
	}
}

// NewHTTP creates a new HTTP transport.
func NewHTTP(addr string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		addr:            addr,
		path:            DefaultPath,
		readTimeout:     30 * time.Second,
		writeTimeout:    30 * time.Second,
		maxBodyBytes:    DefaultMaxBodyBytes,
		logger:          middleware.NopLogger{},
		shutdownTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(h)
	}
	if h.shutdownTimeout <= 0 {
		h.shutdownTimeout = 30 * time.Second
	}

	h.shutdown = NewShutdownManager(ShutdownConfig{
		Timeout:    h.shutdownTimeout,
		DrainDelay: h.drainDelay,
		OnDrainStart: func() {
			h.logger.Info("draining in-flight requests", middleware.F("in_flight", h.shutdown.InFlightRequests()))
		},
	})
	return h
}

// Addr returns the configured address.
func (h *HTTP) Addr() string {
	return h.addr
}

// ListenAddr returns the actual address the server is listening on.
func (h *HTTP) ListenAddr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listenAddr
}

// ShutdownManager returns the manager tracking in-flight requests.
func (h *HTTP) ShutdownManager() *ShutdownManager {
	return h.shutdown
}

// Serve starts the HTTP server and handles requests until ctx is canceled.
// On cancellation it stops accepting envelopes, waits for in-flight ones
// and then shuts the listener down.
func (h *HTTP) Serve(ctx context.Context, handler Handler) error {
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	h.mu.Lock()
	h.listenAddr = listener.Addr().String()
	h.server = &http.Server{
		Handler:      h.Handler(handler),
		ReadTimeout:  h.readTimeout,
		WriteTimeout: h.writeTimeout,
	}
	srv := h.server
	h.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout+h.drainDelay)
		defer cancel()
		if err := h.shutdown.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("in-flight requests did not drain", middleware.F("error", err.Error()))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler returns the http.Handler serving the MCP endpoint and /health.
func (h *HTTP) Handler(handler Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc(h.path, func(w http.ResponseWriter, r *http.Request) {
		h.handleMCP(w, r, handler)
	})

	if h.corsConfig != nil {
		return CORSHandler(*h.corsConfig, mux)
	}
	return mux
}

func (h *HTTP) handleMCP(w http.ResponseWriter, r *http.Request, handler Handler) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !h.shutdown.TrackRequest() {
		w.Header().Set("Connection", "close")
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.shutdown.CompleteRequest()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.writeResponse(w, protocol.NewErrorResponse(nil, protocol.NewInvalidRequest("request body too large or unreadable")))
		return
	}

	req, perr := decodeRequest(body)
	if perr != nil {
		h.writeResponse(w, protocol.NewErrorResponse(nil, perr))
		return
	}

	var identity Identity
	if h.identity != nil {
		identity, err = h.identity.Resolve(r)
		if err != nil {
			h.logger.Warn("identity resolution failed",
				middleware.F("method", req.Method),
				middleware.F("remote_addr", r.RemoteAddr),
				middleware.F("error", err.Error()),
			)
			if req.IsNotification() {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			h.writeResponse(w, protocol.NewErrorResponse(req.ID, protocol.NewUnauthorized("authentication failed")))
			return
		}
	}

	ctx := protocol.ContextWithRequestMeta(r.Context(), requestMeta(r, "http"))
	resp := Dispatch(ctx, handler, req, identity)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeResponse(w, resp)
}

func (h *HTTP) writeResponse(w http.ResponseWriter, resp *protocol.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to write response", middleware.F("error", err.Error()))
	}
}

// decodeRequest parses one envelope. Malformed JSON is a parse error;
// well-formed JSON that is not a request object is an invalid request.
func decodeRequest(body []byte) (*protocol.Request, *protocol.Error) {
	if !json.Valid(body) {
		return nil, protocol.NewParseError("Invalid JSON")
	}
	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, protocol.NewInvalidRequest("request must be a JSON-RPC object")
	}
	if req.Method == "" {
		return nil, protocol.NewInvalidRequest("missing method")
	}
	return &req, nil
}

// requestMeta captures the request details middleware may key on.
func requestMeta(r *http.Request, transport string) protocol.RequestMeta {
	meta := protocol.RequestMeta{
		protocol.MetaRemoteAddr: r.RemoteAddr,
		protocol.MetaTransport:  transport,
	}
	if v := r.Header.Get(protocol.MetaRequestID); v != "" {
		meta[protocol.MetaRequestID] = v
	}
	if v := r.Header.Get(protocol.MetaUserAgent); v != "" {
		meta[protocol.MetaUserAgent] = v
	}
	return meta
}
