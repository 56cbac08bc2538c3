package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/openapi-mcp/apperr"
	"github.com/felixgeelhaar/openapi-mcp/schema"
	"github.com/felixgeelhaar/openapi-mcp/server"
)

// AccountsDocument returns a small OpenAPI document describing an
// accounts API. It compiles to list_accounts, create_account,
// get_accounts_id, delete_accounts_id and post_accounts_interactions.
func AccountsDocument() schema.Document {
	accountID := map[string]any{
		"name": "account_id", "in": "path", "required": true,
		"description": "Account identifier.",
	}
	return schema.Document{
		"openapi": "3.0.3",
		"info":    map[string]any{"title": "Accounts API", "version": "1.0.0"},
		"paths": map[string]any{
			"/accounts": map[string]any{
				"get": map[string]any{
					"operationId": "list_accounts",
					"summary":     "List accounts",
					"parameters": []any{
						map[string]any{"name": "limit", "in": "query", "schema": map[string]any{"type": "integer"}},
					},
				},
				"post": map[string]any{
					"operationId": "create_account",
					"description": "Create a new account.",
					"requestBody": jsonBody("#/components/schemas/AccountInput"),
				},
			},
			"/accounts/{account_id}": map[string]any{
				"parameters": []any{accountID},
				"get":        map[string]any{"summary": "Fetch one account"},
				"delete":     map[string]any{"description": "Delete an account."},
			},
			"/accounts/{account_id}/interactions": map[string]any{
				"post": map[string]any{
					"parameters": []any{
						accountID,
						map[string]any{"name": "title", "in": "query", "required": true},
					},
					"requestBody": jsonBody("#/components/schemas/Interaction"),
				},
			},
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"AccountInput": map[string]any{
					"type":     "object",
					"required": []any{"name"},
					"properties": map[string]any{
						"name":    map[string]any{"type": "string"},
						"address": map[string]any{"type": "object", "properties": map[string]any{"city": map[string]any{"type": "string"}}},
					},
				},
				"Interaction": map[string]any{
					"type":     "object",
					"required": []any{"title"},
					"properties": map[string]any{
						"title": map[string]any{"type": "string"},
						"notes": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

func jsonBody(ref string) map[string]any {
	return map[string]any{
		"content": map[string]any{
			"application/json": map[string]any{"schema": map[string]any{"$ref": ref}},
		},
	}
}

// Accounts is an in-memory accounts store with one handler per tool of
// AccountsDocument.
type Accounts struct {
	mu       sync.Mutex
	accounts map[string]map[string]any
	nextID   int
}

// NewAccounts returns a store seeded with account acc-1 named Acme.
func NewAccounts() *Accounts {
	return &Accounts{
		accounts: map[string]map[string]any{
			"acc-1": {"id": "acc-1", "name": "Acme"},
		},
		nextID: 1,
	}
}

// Register adds the store's handlers to reg.
func (a *Accounts) Register(reg *server.Registry) {
	reg.RegisterFunc("list_accounts", a.list)
	reg.RegisterFunc("create_account", a.create)
	reg.RegisterFunc("get_accounts_id", a.get)
	reg.RegisterFunc("delete_accounts_id", a.delete)
	reg.RegisterFunc("post_accounts_interactions", a.addInteraction)
}

func (a *Accounts) list(ctx context.Context, args map[string]any) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.accounts))
	for id := range a.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.accounts[id])
	}
	return map[string]any{"accounts": out}, nil
}

func (a *Accounts) create(ctx context.Context, args map[string]any) (any, error) {
	name, _ := args["name"].(string)
	if name == "" {
		return nil, apperr.BadRequest("name is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := fmt.Sprintf("acc-%d", a.nextID)
	account := map[string]any{"id": id, "name": name}
	if owner, ok := args["userInfo"].(map[string]any); ok {
		account["owner"] = owner["sub"]
	}
	a.accounts[id] = account
	return account, nil
}

func (a *Accounts) get(ctx context.Context, args map[string]any) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	account, ok := a.accounts[fmt.Sprint(args["account_id"])]
	if !ok {
		return nil, apperr.NotFound("Account not found")
	}
	return account, nil
}

func (a *Accounts) delete(ctx context.Context, args map[string]any) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := fmt.Sprint(args["account_id"])
	if _, ok := a.accounts[id]; !ok {
		return nil, apperr.NotFound("Account not found")
	}
	delete(a.accounts, id)
	return map[string]any{"deleted": id}, nil
}

func (a *Accounts) addInteraction(ctx context.Context, args map[string]any) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := fmt.Sprint(args["account_id"])
	if _, ok := a.accounts[id]; !ok {
		return nil, apperr.NotFound("Account not found")
	}
	if args["title"] == nil {
		return nil, apperr.BadRequest("title is required")
	}
	return map[string]any{"account_id": id, "title": args["title"], "notes": args["notes"]}, nil
}

// AccountsServer returns a server over AccountsDocument backed by a fresh
// Accounts store, plus the store itself.
func AccountsServer(opts ...server.Option) (*server.Server, *Accounts) {
	store := NewAccounts()
	reg := server.NewRegistry()
	store.Register(reg)

	opts = append([]server.Option{
		server.WithCatalog(server.NewCatalog(server.StaticDocument(AccountsDocument()))),
		server.WithRegistry(reg),
	}, opts...)
	return server.New(server.Info{Name: "accounts", Version: "1.0.0"}, opts...), store
}
