// Package protocol defines the MCP JSON-RPC 2.0 message types and error codes.
//
// # Request and Response Types
//
//	type Request struct {
//	    JSONRPC string          `json:"jsonrpc"`
//	    ID      json.RawMessage `json:"id,omitempty"`
//	    Method  string          `json:"method"`
//	    Params  json.RawMessage `json:"params,omitempty"`
//	}
//
// A Request without an ID is a notification and never receives a Response.
//
// # Error Codes
//
// Standard JSON-RPC 2.0 error codes are defined as constants:
//
//	CodeParseError     = -32700  // Invalid JSON
//	CodeInvalidRequest = -32600  // Invalid Request object
//	CodeMethodNotFound = -32601  // Method or tool not found
//	CodeInvalidParams  = -32602  // Invalid method parameters
//	CodeInternalError  = -32603  // Internal server error
//
// Errors raised by tool handlers carry an HTTP status which is translated
// by CodeForHTTPStatus:
//
//	400 -> -32000   401 -> -32001   402 -> -32002   403 -> -32003
//	404 -> -32004   405 -> -32005   408 -> -32008   409 -> -32009
//	410 -> -32010   429 -> -32029   other 4xx -> -32040
//	5xx and anything else -> -32099
package protocol
