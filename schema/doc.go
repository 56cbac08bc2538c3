// Package schema compiles OpenAPI documents into MCP tool definitions.
//
// Every (path, method) operation becomes one Tool whose parameters are a
// JSON Schema object merged from the operation's path and query parameters
// and its JSON request body:
//
//	doc, err := schema.LoadFile("openapi.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, tool := range schema.Compile(doc) {
//	    fmt.Println(tool.Name, tool.Route.Method, tool.Route.Path)
//	}
//
// # Naming
//
// Tool names come from operationId when present, otherwise from the method
// and path: DELETE /accounts/{account_id} compiles to delete_accounts_id.
// Names are ASCII word characters only and at most 64 bytes long. The
// compiler does not make names unique.
//
// # Permissiveness
//
// Every object node that lists properties is given
// additionalProperties: true unless the document already says otherwise, so
// schema-validating clients never reject a call the API would accept.
//
// # References
//
// A request body $ref is followed exactly one hop into components.schemas.
// References nested inside the resolved schema are left untouched, and a
// reference whose target is missing degrades to an empty schema.
package schema
