package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/openapi-mcp/middleware"
	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

// WebSocket implements MCP transport over WebSocket connections. Each
// text message is one envelope. Identity is resolved once, from the
// upgrade request, and applies to every envelope on the connection.
type WebSocket struct {
	addr     string
	path     string
	upgrader websocket.Upgrader
	server   *http.Server
	identity IdentityResolver
	logger   middleware.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	mu         sync.RWMutex
	clients    map[*wsClient]struct{}
	listenAddr string
}

// wsClient represents a single WebSocket connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WebSocketOption configures a WebSocket transport.
type WebSocketOption func(*WebSocket)

// WithWebSocketReadTimeout sets the read timeout for WebSocket messages.
func WithWebSocketReadTimeout(d time.Duration) WebSocketOption {
	return func(ws *WebSocket) {
		ws.readTimeout = d
	}
}

// WithWebSocketWriteTimeout sets the write timeout for WebSocket messages.
func WithWebSocketWriteTimeout(d time.Duration) WebSocketOption {
	return func(ws *WebSocket) {
		ws.writeTimeout = d
	}
}

// WithWebSocketCheckOrigin sets the origin check function for WebSocket upgrades.
func WithWebSocketCheckOrigin(fn func(r *http.Request) bool) WebSocketOption {
	return func(ws *WebSocket) {
		ws.upgrader.CheckOrigin = fn
	}
}

// WithWebSocketPath sets the upgrade path. Defaults to DefaultPath.
func WithWebSocketPath(path string) WebSocketOption {
	return func(ws *WebSocket) {
		ws.path = path
	}
}

// WithWebSocketIdentityResolver resolves the caller identity from the
// upgrade request. A failed resolution rejects the upgrade with 401.
func WithWebSocketIdentityResolver(r IdentityResolver) WebSocketOption {
	return func(ws *WebSocket) {
		ws.identity = r
	}
}

// WithWebSocketLogger sets the logger for connection-level events.
func WithWebSocketLogger(l middleware.Logger) WebSocketOption {
	return func(ws *WebSocket) {
		ws.logger = l
	}
}

// NewWebSocket creates a new WebSocket transport.
func NewWebSocket(addr string, opts ...WebSocketOption) *WebSocket {
	ws := &WebSocket{
		addr: addr,
		path: DefaultPath,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:       middleware.NopLogger{},
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		clients:      make(map[*wsClient]struct{}),
	}

	for _, opt := range opts {
		opt(ws)
	}

	return ws
}

// Addr returns the transport address.
func (ws *WebSocket) Addr() string {
	return ws.addr
}

// ListenAddr returns the bound address once Serve is listening.
func (ws *WebSocket) ListenAddr() string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.listenAddr
}

// Serve starts the WebSocket server.
func (ws *WebSocket) Serve(ctx context.Context, handler Handler) error {
	listener, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return err
	}

	ws.mu.Lock()
	ws.listenAddr = listener.Addr().String()
	ws.server = &http.Server{
		Handler: ws.Handler(ctx, handler),
	}
	srv := ws.server
	ws.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ws.closeAllClients()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Handler returns the http.Handler accepting upgrades on the configured
// path. Connections end when ctx is canceled.
func (ws *WebSocket) Handler(ctx context.Context, handler Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ws.path, func(w http.ResponseWriter, r *http.Request) {
		ws.handleConnection(ctx, w, r, handler)
	})
	return mux
}

func (ws *WebSocket) handleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request, handler Handler) {
	var identity Identity
	if ws.identity != nil {
		var err error
		identity, err = ws.identity.Resolve(r)
		if err != nil {
			ws.logger.Warn("identity resolution failed",
				middleware.F("remote_addr", r.RemoteAddr),
				middleware.F("error", err.Error()),
			)
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn}

	ws.mu.Lock()
	ws.clients[client] = struct{}{}
	ws.mu.Unlock()

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, client)
		ws.mu.Unlock()
		_ = conn.Close()
	}()

	connCtx := protocol.ContextWithRequestMeta(ctx, requestMeta(r, "ws"))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ws.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(ws.readTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.logger.Debug("websocket read failed", middleware.F("error", err.Error()))
			}
			return
		}

		req, perr := decodeRequest(message)
		if perr != nil {
			_ = ws.write(client, protocol.NewErrorResponse(nil, perr))
			continue
		}

		if resp := Dispatch(connCtx, handler, req, identity); resp != nil {
			if err := ws.write(client, resp); err != nil {
				ws.logger.Error("failed to write response", middleware.F("error", err.Error()))
				return
			}
		}
	}
}

func (ws *WebSocket) write(c *wsClient, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ws.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(ws.writeTimeout))
	}
	return c.conn.WriteJSON(v)
}

func (ws *WebSocket) closeAllClients() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	for client := range ws.clients {
		client.close()
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}
