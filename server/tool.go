package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

// Typed adapts a handler that takes a concrete input type.
//
// The call arguments are re-decoded into In through encoding/json, so In
// should carry json tags matching the compiled parameter names. A decode
// failure is reported to the client as invalid params.
//
//	reg.Register("get_accounts_id", server.Typed(
//	    func(ctx context.Context, in struct {
//	        AccountID string `json:"account_id"`
//	    }) (*Account, error) {
//	        return store.Account(ctx, in.AccountID)
//	    }))
func Typed[In, Out any](fn func(ctx context.Context, input In) (Out, error)) ToolHandler {
	return ToolHandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		var input In
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, protocol.NewInvalidParams(fmt.Sprintf("failed to encode arguments: %v", err))
		}
		if err := json.Unmarshal(raw, &input); err != nil {
			return nil, protocol.NewInvalidParams(fmt.Sprintf("failed to parse arguments: %v", err))
		}
		return fn(ctx, input)
	})
}
