// Package server provides the MCP protocol server that exposes compiled
// OpenAPI operations as tools.
//
// Most users should use the higher-level mcp package instead of using this
// package directly.
//
// # Catalog
//
// A Catalog loads the OpenAPI document on first use and keeps the compiled
// tool list for the life of the process:
//
//	cat := server.NewCatalog(server.FileLoader("openapi.yaml"))
//
// # Registry
//
// Handlers are bound to tool names. Handlers report business failures with
// the apperr package; the server translates the carried HTTP status into a
// JSON-RPC error code:
//
//	reg := server.NewRegistry()
//	reg.RegisterFunc("get_accounts_id", func(ctx context.Context, args map[string]any) (any, error) {
//	    acct, ok := store.Find(args["account_id"])
//	    if !ok {
//	        return nil, apperr.NotFound("Account not found")
//	    }
//	    return acct, nil
//	})
//
// Compare both sides at startup with Registry.Validate.
//
// # Server
//
//	srv := server.New(server.Info{Name: "crm", Version: "1.0.0"},
//	    server.WithCatalog(cat),
//	    server.WithRegistry(reg),
//	)
//
// The server answers initialize, notifications/initialized, ping,
// tools/list and tools/call. Any other request is rejected with
// "Method not found"; any other notification is ignored.
package server
