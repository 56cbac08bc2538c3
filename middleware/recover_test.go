package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

func TestRecover(t *testing.T) {
	panicking := HandlerFunc(func(context.Context, *protocol.Request) (*protocol.Response, error) {
		panic("nil map write in handler")
	})

	t.Run("converts panic to internal error without leaking", func(t *testing.T) {
		resp, err := Recover()(panicking)(context.Background(), &protocol.Request{Method: "tools/call"})
		if resp != nil {
			t.Errorf("resp = %v, want nil", resp)
		}
		var perr *protocol.Error
		if !errors.As(err, &perr) {
			t.Fatalf("expected protocol.Error, got %T", err)
		}
		if perr.Code != protocol.CodeInternalError {
			t.Errorf("code = %d, want %d", perr.Code, protocol.CodeInternalError)
		}
		if strings.Contains(perr.Message, "nil map") {
			t.Errorf("message leaks panic value: %q", perr.Message)
		}
	})

	t.Run("logs panic value", func(t *testing.T) {
		logger := &mockLogger{}
		req := &protocol.Request{Method: protocol.MethodToolsCall, Params: json.RawMessage(`{"name":"create_account"}`)}
		_, _ = RecoverWithLogger(logger)(panicking)(context.Background(), req)

		if len(logger.entries) != 1 || logger.entries[0].message != "panic recovered" {
			t.Fatalf("entries = %+v", logger.entries)
		}
		if v, _ := logger.entries[0].field("panic"); v != "nil map write in handler" {
			t.Errorf("panic = %v", v)
		}
		if v, _ := logger.entries[0].field("tool"); v != "create_account" {
			t.Errorf("tool = %v", v)
		}
	})

	t.Run("passes through when no panic", func(t *testing.T) {
		resp, err := Recover()(func(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
			return protocol.NewResponse(req.ID, "ok"), nil
		})(context.Background(), &protocol.Request{ID: json.RawMessage(`1`)})
		if err != nil || resp == nil {
			t.Errorf("got %v, %v", resp, err)
		}
	})

	t.Run("custom handler", func(t *testing.T) {
		var got any
		handler := RecoverWithHandler(func(_ context.Context, req *protocol.Request, v any) (*protocol.Response, error) {
			got = v
			return protocol.NewResponse(req.ID, "recovered"), nil
		})
		resp, err := handler(panicking)(context.Background(), &protocol.Request{ID: json.RawMessage(`1`)})
		if err != nil || resp.Result != "recovered" {
			t.Errorf("got %v, %v", resp, err)
		}
		if got != "nil map write in handler" {
			t.Errorf("panic value = %v", got)
		}
	})
}
