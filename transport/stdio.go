package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/felixgeelhaar/openapi-mcp/middleware"
	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

// Stdio implements MCP transport over newline-delimited JSON on
// stdin/stdout.
type Stdio struct {
	in       io.Reader
	out      io.Writer
	identity Identity
	maxLine  int
	logger   middleware.Logger

	mu sync.Mutex
}

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithStdin sets a custom stdin reader.
func WithStdin(r io.Reader) StdioOption {
	return func(s *Stdio) {
		s.in = r
	}
}

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) StdioOption {
	return func(s *Stdio) {
		s.out = w
	}
}

// WithStdioIdentity injects a fixed identity into every call. A local
// process has no request headers to resolve one from.
func WithStdioIdentity(id Identity) StdioOption {
	return func(s *Stdio) {
		s.identity = id
	}
}

// WithStdioLogger sets the logger for transport-level events.
func WithStdioLogger(l middleware.Logger) StdioOption {
	return func(s *Stdio) {
		s.logger = l
	}
}

// NewStdio creates a new stdio transport.
func NewStdio(opts ...StdioOption) *Stdio {
	s := &Stdio{
		in:      os.Stdin,
		out:     os.Stdout,
		maxLine: DefaultMaxBodyBytes,
		logger:  middleware.NopLogger{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Addr returns the transport address.
func (s *Stdio) Addr() string {
	return "stdio"
}

// Serve processes envelopes from stdin until EOF or ctx is canceled.
func (s *Stdio) Serve(ctx context.Context, handler Handler) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), s.maxLine)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := bytes.Clone(scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	meta := protocol.RequestMeta{protocol.MetaTransport: "stdio"}
	ctx = protocol.ContextWithRequestMeta(ctx, meta)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			s.handleLine(ctx, handler, line)
		}
	}
}

func (s *Stdio) handleLine(ctx context.Context, handler Handler, line []byte) {
	req, perr := decodeRequest(line)
	if perr != nil {
		s.writeResponse(protocol.NewErrorResponse(nil, perr))
		return
	}

	if resp := Dispatch(ctx, handler, req, s.identity); resp != nil {
		s.writeResponse(resp)
	}
}

func (s *Stdio) writeResponse(resp *protocol.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", middleware.F("error", err.Error()))
		return
	}

	data = append(data, '\n')
	if _, err := s.out.Write(data); err != nil {
		s.logger.Error("failed to write response", middleware.F("error", err.Error()))
	}
}
