package transport_test

import (
	"encoding/json"
	"testing"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
	"github.com/felixgeelhaar/openapi-mcp/transport"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		params   string
		identity transport.Identity
		want     string
		wantCode int
	}{
		{name: "absent params", params: "", want: `{"arguments":{}}`},
		{name: "null params", params: "null", want: `{"arguments":{}}`},
		{name: "null arguments", params: `{"name":"t","arguments":null}`, want: `{"arguments":{},"name":"t"}`},
		{name: "arguments kept", params: `{"name":"t","arguments":{"a":[1,2]}}`, want: `{"arguments":{"a":[1,2]},"name":"t"}`},
		{
			name:     "identity injected",
			params:   `{"name":"t"}`,
			identity: transport.Identity{"sub": "u-1"},
			want:     `{"arguments":{"userInfo":{"sub":"u-1"}},"name":"t"}`,
		},
		{
			name:     "client userInfo replaced",
			params:   `{"name":"t","arguments":{"userInfo":{"sub":"admin"},"x":1}}`,
			identity: transport.Identity{"sub": "u-1"},
			want:     `{"arguments":{"userInfo":{"sub":"u-1"},"x":1},"name":"t"}`,
		},
		{
			name:   "client userInfo dropped without identity",
			params: `{"name":"t","arguments":{"userInfo":{"sub":"admin"},"x":1}}`,
			want:   `{"arguments":{"x":1},"name":"t"}`,
		},
		{
			name:   "only userInfo leaves empty arguments",
			params: `{"arguments":{"userInfo":"raw"}}`,
			want:   `{"arguments":{}}`,
		},
		{name: "params array", params: `[]`, wantCode: protocol.CodeInvalidRequest},
		{name: "params string", params: `"x"`, wantCode: protocol.CodeInvalidRequest},
		{name: "arguments array", params: `{"arguments":[1]}`, wantCode: protocol.CodeInvalidParams},
		{name: "arguments number", params: `{"arguments":3}`, wantCode: protocol.CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &protocol.Request{Method: "tools/call"}
			if tt.params != "" {
				req.Params = json.RawMessage(tt.params)
			}

			err := transport.Normalize(req, tt.identity)

			if tt.wantCode != 0 {
				if err == nil || protocol.AsError(err).Code != tt.wantCode {
					t.Fatalf("Normalize() = %v, want code %d", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() = %v", err)
			}
			if string(req.Params) != tt.want {
				t.Errorf("params = %s, want %s", req.Params, tt.want)
			}
		})
	}
}
