package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/openapi-mcp/middleware"
	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

func TestSizeLimit(t *testing.T) {
	handler := middleware.SizeLimit(64)(okHandler)

	tests := []struct {
		name    string
		params  json.RawMessage
		wantErr bool
	}{
		{"no params", nil, false},
		{"small params", json.RawMessage(`{"name":"list_accounts"}`), false},
		{"exactly at limit", json.RawMessage(`"` + strings.Repeat("a", 62) + `"`), false},
		{"over limit", json.RawMessage(`"` + strings.Repeat("a", 100) + `"`), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler(context.Background(), &protocol.Request{
				JSONRPC: "2.0",
				ID:      json.RawMessage(`1`),
				Method:  "tools/call",
				Params:  tt.params,
			})
			if !tt.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var perr *protocol.Error
			if !errors.As(err, &perr) {
				t.Fatalf("expected protocol.Error, got %v", err)
			}
			if perr.Code != protocol.CodeInvalidRequest {
				t.Errorf("code = %d, want %d", perr.Code, protocol.CodeInvalidRequest)
			}
			if !strings.Contains(perr.Message, "exceeds limit of 64 bytes") {
				t.Errorf("message = %q", perr.Message)
			}
		})
	}
}

func TestSizeLimit_Logs(t *testing.T) {
	logger := &countingLogger{}
	handler := middleware.SizeLimit(middleware.KB, middleware.WithSizeLimitLogger(logger))(okHandler)

	big := json.RawMessage(`"` + strings.Repeat("x", 2*middleware.KB) + `"`)
	_, _ = handler(context.Background(), &protocol.Request{ID: json.RawMessage(`1`), Method: "tools/call", Params: big})

	if logger.warns != 1 {
		t.Errorf("warns = %d, want 1", logger.warns)
	}
	if middleware.MB != 1024*1024 {
		t.Errorf("MB = %d", middleware.MB)
	}
}
