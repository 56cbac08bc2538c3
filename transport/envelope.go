package transport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

// UserInfoKey is the argument under which the caller identity is injected.
const UserInfoKey = "userInfo"

var emptyObject = json.RawMessage(`{}`)

// Normalize rewrites req.Params before dispatch. Absent params become {},
// absent params.arguments become {}. A client-sent params.arguments.userInfo
// is always dropped; a non-nil identity is written in its place.
//
// Params that are not an object are rejected with CodeInvalidRequest;
// arguments that are not an object are rejected with CodeInvalidParams.
func Normalize(req *protocol.Request, identity Identity) error {
	params := map[string]json.RawMessage{}
	if !isNull(req.Params) {
		if err := json.Unmarshal(req.Params, &params); err != nil || params == nil {
			return protocol.NewInvalidRequest("params must be an object")
		}
	}

	args := map[string]json.RawMessage{}
	if raw, ok := params["arguments"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &args); err != nil || args == nil {
			return protocol.NewInvalidParams("params.arguments must be an object")
		}
	}

	delete(args, UserInfoKey)
	if identity != nil {
		info, err := json.Marshal(identity)
		if err != nil {
			return protocol.NewInternalError(fmt.Sprintf("encoding identity: %v", err))
		}
		args[UserInfoKey] = info
	}

	if len(args) == 0 {
		params["arguments"] = emptyObject
	} else {
		raw, err := json.Marshal(args)
		if err != nil {
			return protocol.NewInternalError(fmt.Sprintf("encoding arguments: %v", err))
		}
		params["arguments"] = raw
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return protocol.NewInternalError(fmt.Sprintf("encoding params: %v", err))
	}
	req.Params = raw
	return nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
