package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

// StreamTransport exchanges newline-delimited envelopes over a reader and
// writer pair. Responses are matched to callers by id, so concurrent Sends
// are allowed.
type StreamTransport struct {
	w      io.Writer
	closer func() error

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan []byte
	closed  bool
	readErr error
	done    chan struct{}
}

// NewStreamTransport reads responses from r and writes requests to w.
// closer, when non-nil, is called by Close.
func NewStreamTransport(r io.Reader, w io.Writer, closer func() error) *StreamTransport {
	t := &StreamTransport{
		w:       w,
		closer:  closer,
		pending: make(map[string]chan []byte),
		done:    make(chan struct{}),
	}
	go t.readLoop(r)
	return t
}

// NewCommandTransport starts command and talks to it over its stdin and
// stdout. The process's stderr is inherited.
func NewCommandTransport(command string, args ...string) (*StreamTransport, error) {
	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	return NewStreamTransport(stdout, stdin, func() error {
		_ = stdin.Close()
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
		return nil
	}), nil
}

// Send writes req and, unless it is a notification, waits for the
// response with the same id.
func (t *StreamTransport) Send(ctx context.Context, req *protocol.Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var ch chan []byte
	key := string(req.ID)
	if !req.IsNotification() {
		ch = make(chan []byte, 1)
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil, ErrClosed
		}
		t.pending[key] = ch
		t.mu.Unlock()

		defer func() {
			t.mu.Lock()
			delete(t.pending, key)
			t.mu.Unlock()
		}()
	}

	t.writeMu.Lock()
	_, err = t.w.Write(append(data, '\n'))
	t.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	if ch == nil {
		return nil, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case raw := <-ch:
		return raw, nil
	case <-t.done:
		t.mu.Lock()
		err := t.readErr
		t.mu.Unlock()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}
}

// Close stops the transport. Pending Sends fail.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.closer != nil {
		return t.closer()
	}
	return nil
}

func (t *StreamTransport) readLoop(r io.Reader) {
	defer close(t.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)

		var head struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			continue
		}

		t.mu.Lock()
		if ch, ok := t.pending[string(head.ID)]; ok {
			ch <- line
			delete(t.pending, string(head.ID))
		}
		t.mu.Unlock()
	}

	t.mu.Lock()
	t.readErr = scanner.Err()
	t.mu.Unlock()
}
