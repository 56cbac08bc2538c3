// Package e2e provides end-to-end compliance tests for the MCP gateway.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	mcp "github.com/felixgeelhaar/openapi-mcp"
	"github.com/felixgeelhaar/openapi-mcp/apperr"
	"github.com/felixgeelhaar/openapi-mcp/client"
	"github.com/felixgeelhaar/openapi-mcp/protocol"
	"github.com/felixgeelhaar/openapi-mcp/schema"
	"github.com/felixgeelhaar/openapi-mcp/server"
	"github.com/felixgeelhaar/openapi-mcp/testutil"
	"github.com/felixgeelhaar/openapi-mcp/transport"
	"github.com/felixgeelhaar/openapi-mcp/upstream"
)

var secret = []byte("compliance-secret")

type reply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *protocol.Error `json:"error"`
}

// endpoint serves h on a real HTTP listener.
func endpoint(t *testing.T, h transport.Handler, opts ...transport.HTTPOption) string {
	t.Helper()
	tr := transport.NewHTTP("", opts...)
	ts := httptest.NewServer(tr.Handler(h))
	t.Cleanup(ts.Close)
	return ts.URL + transport.DefaultPath
}

func postRaw(t *testing.T, url, body string, header http.Header) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func rpc(t *testing.T, url, body string) reply {
	t.Helper()
	status, data := postRaw(t, url, body, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", status, data)
	}
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("invalid response %q: %v", data, err)
	}
	if r.JSONRPC != "2.0" {
		t.Errorf("jsonrpc = %q, want 2.0", r.JSONRPC)
	}
	return r
}

func call(name string, args string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, name, args)
}

// TestMCPCompliance_Initialize tests the initialize handshake.
func TestMCPCompliance_Initialize(t *testing.T) {
	srv, _ := testutil.AccountsServer()
	url := endpoint(t, srv)

	t.Run("returns protocol version and server info", func(t *testing.T) {
		r := rpc(t, url, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"e2e","version":"0.0.1"}}}`)
		if r.Error != nil {
			t.Fatalf("unexpected error: %v", r.Error)
		}

		var result struct {
			ProtocolVersion string                     `json:"protocolVersion"`
			Capabilities    map[string]json.RawMessage `json:"capabilities"`
			ServerInfo      struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"serverInfo"`
		}
		if err := json.Unmarshal(r.Result, &result); err != nil {
			t.Fatal(err)
		}
		if result.ProtocolVersion != protocol.MCPVersion {
			t.Errorf("protocolVersion = %q, want %q", result.ProtocolVersion, protocol.MCPVersion)
		}
		if result.ServerInfo.Name != "accounts" || result.ServerInfo.Version != "1.0.0" {
			t.Errorf("serverInfo = %+v", result.ServerInfo)
		}
		if _, ok := result.Capabilities["tools"]; !ok {
			t.Error("expected tools capability")
		}
	})

	t.Run("initialized notification gets no body", func(t *testing.T) {
		status, body := postRaw(t, url, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
		if status != http.StatusNoContent {
			t.Errorf("status = %d, want 204", status)
		}
		if len(body) != 0 {
			t.Errorf("body = %q, want empty", body)
		}
	})

	t.Run("ping returns empty result", func(t *testing.T) {
		r := rpc(t, url, `{"jsonrpc":"2.0","id":"p-1","method":"ping"}`)
		if string(r.ID) != `"p-1"` {
			t.Errorf("id = %s, want \"p-1\"", r.ID)
		}
		if string(r.Result) != `{}` {
			t.Errorf("result = %s, want {}", r.Result)
		}
	})
}

// TestMCPCompliance_Tools tests listing and calling tools.
func TestMCPCompliance_Tools(t *testing.T) {
	var loads atomic.Int32
	doc := testutil.AccountsDocument()
	catalog := server.NewCatalog(func(ctx context.Context) (schema.Document, error) {
		loads.Add(1)
		return doc, nil
	})
	store := testutil.NewAccounts()
	reg := server.NewRegistry()
	store.Register(reg)
	srv := server.New(server.Info{Name: "accounts", Version: "1.0.0"},
		server.WithCatalog(catalog), server.WithRegistry(reg))
	url := endpoint(t, srv)

	t.Run("tools/list is compiled once and deterministic", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make([]string, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resp, err := http.Post(url, "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
				if err != nil {
					t.Error(err)
					return
				}
				defer resp.Body.Close()
				var r reply
				if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
					t.Error(err)
					return
				}
				results[i] = string(r.Result)
			}(i)
		}
		wg.Wait()

		for i := 1; i < len(results); i++ {
			if results[i] != results[0] {
				t.Fatalf("tools/list responses differ:\n%s\n%s", results[0], results[i])
			}
		}
		if got := loads.Load(); got != 1 {
			t.Errorf("document loaded %d times, want 1", got)
		}

		var list struct {
			Tools []schema.Tool `json:"tools"`
		}
		if err := json.Unmarshal([]byte(results[0]), &list); err != nil {
			t.Fatal(err)
		}
		var names []string
		for _, tool := range list.Tools {
			if tool.Type != schema.ToolType {
				t.Errorf("tool %s type = %q", tool.Name, tool.Type)
			}
			names = append(names, tool.Name)
		}
		want := "list_accounts,create_account,get_accounts_id,delete_accounts_id,post_accounts_interactions"
		if got := strings.Join(names, ","); got != want {
			t.Errorf("tools = %s, want %s", got, want)
		}
	})

	t.Run("tools/call returns handler result", func(t *testing.T) {
		r := rpc(t, url, call("get_accounts_id", `{"account_id":"acc-1"}`))
		if r.Error != nil {
			t.Fatalf("unexpected error: %v", r.Error)
		}
		if string(r.ID) != "7" {
			t.Errorf("id = %s, want 7", r.ID)
		}
		if !strings.Contains(string(r.Result), `"name":"Acme"`) {
			t.Errorf("result = %s", r.Result)
		}
	})

	t.Run("unknown tool returns MethodNotFound", func(t *testing.T) {
		r := rpc(t, url, call("drop_tables", `{}`))
		if r.Error == nil || r.Error.Code != protocol.CodeMethodNotFound {
			t.Fatalf("error = %v, want code %d", r.Error, protocol.CodeMethodNotFound)
		}
		if !strings.Contains(r.Error.Message, "drop_tables") {
			t.Errorf("message = %q, want tool name", r.Error.Message)
		}
	})

	t.Run("business error keeps its message", func(t *testing.T) {
		r := rpc(t, url, call("get_accounts_id", `{"account_id":"missing"}`))
		if r.Error == nil || r.Error.Code != protocol.CodeNotFound || r.Error.Message != "Account not found" {
			t.Errorf("error = %+v", r.Error)
		}
	})
}

// TestMCPCompliance_ErrorTable checks the HTTP status to JSON-RPC code mapping
// end to end.
func TestMCPCompliance_ErrorTable(t *testing.T) {
	tests := []struct {
		status int
		code   int
	}{
		{400, -32000},
		{401, -32001},
		{402, -32002},
		{403, -32003},
		{404, -32004},
		{405, -32005},
		{408, -32008},
		{409, -32009},
		{410, -32010},
		{418, -32040},
		{429, -32029},
		{500, -32099},
		{503, -32099},
	}

	reg := server.NewRegistry()
	reg.RegisterFunc("get_accounts_id", func(ctx context.Context, args map[string]any) (any, error) {
		var status int
		_, _ = fmt.Sscan(fmt.Sprint(args["account_id"]), &status)
		return nil, apperr.Newf(status, "status %d", status)
	})
	reg.RegisterFunc("list_accounts", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("connection reset by peer")
	})
	srv := server.New(server.Info{Name: "errors"},
		server.WithCatalog(server.NewCatalog(server.StaticDocument(testutil.AccountsDocument()))),
		server.WithRegistry(reg))
	url := endpoint(t, srv)

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			r := rpc(t, url, call("get_accounts_id", fmt.Sprintf(`{"account_id":"%d"}`, tt.status)))
			if r.Error == nil {
				t.Fatal("expected error")
			}
			if r.Error.Code != tt.code {
				t.Errorf("code = %d, want %d", r.Error.Code, tt.code)
			}
			if want := fmt.Sprintf("status %d", tt.status); r.Error.Message != want {
				t.Errorf("message = %q, want %q", r.Error.Message, want)
			}
		})
	}

	t.Run("plain error is generic", func(t *testing.T) {
		r := rpc(t, url, call("list_accounts", `{}`))
		if r.Error == nil || r.Error.Code != protocol.CodeServerError {
			t.Fatalf("error = %v", r.Error)
		}
		if strings.Contains(r.Error.Message, "connection reset") {
			t.Errorf("message leaks cause: %q", r.Error.Message)
		}
	})
}

// TestMCPCompliance_JSONRPC tests envelope level behavior.
func TestMCPCompliance_JSONRPC(t *testing.T) {
	srv, _ := testutil.AccountsServer()
	url := endpoint(t, srv)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{"jsonrpc":`, protocol.CodeParseError},
		{"array body", `[1,2]`, protocol.CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, protocol.CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, protocol.CodeMethodNotFound},
		{"params not an object", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":[1]}`, protocol.CodeInvalidRequest},
		{"arguments not an object", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_accounts","arguments":"x"}}`, protocol.CodeInvalidParams},
		{"missing tool name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, protocol.CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rpc(t, url, tt.body)
			if r.Error == nil {
				t.Fatalf("expected error, got result %s", r.Result)
			}
			if r.Error.Code != tt.code {
				t.Errorf("code = %d, want %d", r.Error.Code, tt.code)
			}
		})
	}

	t.Run("GET is rejected", func(t *testing.T) {
		resp, err := http.Get(url)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", resp.StatusCode)
		}
	})
}

// TestMCPCompliance_Identity tests that the resolved identity reaches
// handlers as arguments.userInfo.
func TestMCPCompliance_Identity(t *testing.T) {
	srv, _ := testutil.AccountsServer()
	url := endpoint(t, srv, transport.WithIdentityResolver(transport.BearerJWTIdentity(secret)))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("valid token", func(t *testing.T) {
		header := http.Header{"Authorization": {"Bearer " + token}}
		status, data := postRaw(t, url, call("create_account", `{"name":"Globex","userInfo":{"sub":"spoofed"}}`), header)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		var r reply
		if err := json.Unmarshal(data, &r); err != nil {
			t.Fatal(err)
		}
		if r.Error != nil {
			t.Fatalf("unexpected error: %v", r.Error)
		}
		if !strings.Contains(string(r.Result), `"owner":"user-42"`) {
			t.Errorf("result = %s, want owner from token", r.Result)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		r := rpc(t, url, call("list_accounts", `{}`))
		if r.Error == nil || r.Error.Code != protocol.CodeUnauthorized {
			t.Errorf("error = %v, want code %d", r.Error, protocol.CodeUnauthorized)
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("other"))
		header := http.Header{"Authorization": {"Bearer " + forged}}
		_, data := postRaw(t, url, call("list_accounts", `{}`), header)
		var r reply
		_ = json.Unmarshal(data, &r)
		if r.Error == nil || r.Error.Code != protocol.CodeUnauthorized {
			t.Errorf("error = %v, want code %d", r.Error, protocol.CodeUnauthorized)
		}
	})
}

// TestMCPCompliance_Gateway runs a client against the full gateway: client,
// HTTP transport, server, upstream client and a fake API.
func TestMCPCompliance_Gateway(t *testing.T) {
	type seen struct {
		method, path, query, body, identity string
	}
	var (
		mu   sync.Mutex
		last seen
	)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		last = seen{r.Method, r.URL.Path, r.URL.RawQuery, string(bytes.TrimSpace(body)), r.Header.Get("X-User-Info")}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/accounts":
			_, _ = w.Write([]byte(`{"accounts":[{"id":"acc-1"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/accounts/acc-1/interactions":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"Account not found"}}`))
		}
	}))
	defer api.Close()

	up, err := upstream.New(api.URL, upstream.WithIdentityHeader("X-User-Info"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	srv, err := mcp.NewGateway(ctx, mcp.ServerInfo{Name: "gateway", Version: "1.0.0"},
		mcp.StaticDocument(testutil.AccountsDocument()), up)
	if err != nil {
		t.Fatal(err)
	}

	identity := transport.StaticTokens(map[string]transport.Identity{
		"tok-1": {"sub": "user-1"},
	})
	url := endpoint(t, mcp.Handler(srv, mcp.WithMiddleware(mcp.Recover(), mcp.RequestID())),
		transport.WithIdentityResolver(identity))

	c := client.NewHTTP(url, []client.HTTPOption{client.WithBearerToken("tok-1")})
	defer c.Close()

	info, err := c.Initialize(ctx)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if info.Name != "gateway" || !info.Tools {
		t.Errorf("server info = %+v", info)
	}

	tools, err := c.ListTools(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 5 {
		t.Fatalf("got %d tools, want 5", len(tools))
	}

	var list struct {
		Accounts []map[string]any `json:"accounts"`
	}
	if err := c.CallToolInto(ctx, "list_accounts", map[string]any{"limit": 10}, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Accounts) != 1 {
		t.Errorf("accounts = %v", list.Accounts)
	}
	mu.Lock()
	if last.query != "limit=10" {
		t.Errorf("query = %q, want limit=10", last.query)
	}
	if !strings.Contains(last.identity, `"sub":"user-1"`) {
		t.Errorf("identity header = %q", last.identity)
	}
	mu.Unlock()

	result, err := c.CallTool(ctx, "post_accounts_interactions", map[string]any{
		"account_id": "acc-1",
		"title":      "Kickoff",
		"notes":      "went well",
	})
	if err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if last.method != http.MethodPost || last.path != "/accounts/acc-1/interactions" || last.query != "title=Kickoff" {
		t.Errorf("upstream saw %+v", last)
	}
	if last.body != `{"notes":"went well"}` {
		t.Errorf("body = %s", last.body)
	}
	mu.Unlock()
	if !strings.Contains(string(result), `"notes":"went well"`) {
		t.Errorf("result = %s", result)
	}

	_, err = c.CallTool(ctx, "get_accounts_id", map[string]any{"account_id": "acc-404"})
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *protocol.Error, got %v", err)
	}
	if perr.Code != protocol.CodeNotFound || perr.Message != "Account not found" {
		t.Errorf("error = %+v", perr)
	}
}
