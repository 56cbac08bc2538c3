package schema

import (
	"sort"
	"strings"
)

// DefaultDescription is used for operations without a description or summary.
const DefaultDescription = "No description provided"

// ToolType is the type tag carried by every tool definition.
const ToolType = "function"

// methods lists the operation keys of a path item in compile order.
var methods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

// Tool is a self-describing callable compiled from one OpenAPI operation.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	// Route records where the operation lives so a handler can replay the
	// call against the API. It is never serialized.
	Route Route `json:"-"`
}

// Route locates the HTTP operation a tool was compiled from.
type Route struct {
	Method  string
	Path    string
	Params  []RouteParam
	HasBody bool
}

// RouteParam is a declared path, query, header or cookie parameter.
type RouteParam struct {
	Name     string
	In       string
	Required bool
}

// ParamsIn returns the names of the route parameters declared in location in.
func (r Route) ParamsIn(in string) []string {
	var names []string
	for _, p := range r.Params {
		if p.In == in {
			names = append(names, p.Name)
		}
	}
	return names
}

// Compile turns every (path, method) operation of doc into a Tool.
//
// Compile never fails: malformed fragments degrade to empty schemas and a
// malformed document yields fewer or sparser tools. Output order is sorted
// by path, then by the fixed method order, so identical documents compile to
// identical tool lists.
func Compile(doc Document) []Tool {
	paths := doc.Paths()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	var tools []Tool
	for _, path := range keys {
		item := asMap(paths[path])
		if item == nil {
			continue
		}
		shared := asSlice(item["parameters"])
		for _, method := range methods {
			op := asMap(item[method])
			if op == nil {
				continue
			}
			tools = append(tools, compileOperation(doc, method, path, shared, op))
		}
	}
	return tools
}

func compileOperation(doc Document, method, path string, shared []any, op map[string]any) Tool {
	properties := map[string]any{}
	var required []string
	route := Route{Method: strings.ToUpper(method), Path: path}

	for _, param := range mergeParameters(doc, shared, asSlice(op["parameters"])) {
		name := asString(param["name"])
		prop, ok := clone(param["schema"]).(map[string]any)
		if !ok {
			prop = map[string]any{"type": "string"}
		}
		if desc := asString(param["description"]); desc != "" {
			prop["description"] = desc
		}
		properties[name] = prop

		isRequired, _ := param["required"].(bool)
		if isRequired {
			required = append(required, name)
		}
		route.Params = append(route.Params, RouteParam{
			Name:     name,
			In:       asString(param["in"]),
			Required: isRequired,
		})
	}

	if body, ok := requestBodySchema(doc, op); ok {
		route.HasBody = true
		for name, prop := range asMap(body["properties"]) {
			properties[name] = prop
		}
		for _, name := range asSlice(body["required"]) {
			if s, ok := name.(string); ok {
				required = append(required, s)
			}
		}
	}

	parameters := map[string]any{
		"type":                 "object",
		"additionalProperties": true,
	}
	if len(properties) > 0 {
		parameters["properties"] = properties
	}
	if required = dedupe(required); len(required) > 0 {
		parameters["required"] = required
	}
	Permissive(parameters)

	return Tool{
		Type:        ToolType,
		Name:        ToolName(method, path, asString(op["operationId"])),
		Description: describe(op),
		Parameters:  parameters,
		Route:       route,
	}
}

func describe(op map[string]any) string {
	if d := asString(op["description"]); d != "" {
		return d
	}
	if s := asString(op["summary"]); s != "" {
		return s
	}
	return DefaultDescription
}

// mergeParameters combines path-item and operation parameters. Operation
// entries replace path-item entries with the same name and location.
// A $ref entry is followed one hop into components.parameters; entries
// without a string name are dropped.
func mergeParameters(doc Document, shared, own []any) []map[string]any {
	var merged []map[string]any
	index := map[string]int{}

	add := func(raw any) {
		param := asMap(raw)
		if ref := asString(param["$ref"]); ref != "" {
			param, _ = resolveRef(ref, "parameters", doc.Parameters())
		}
		name, ok := param["name"].(string)
		if !ok || name == "" {
			return
		}
		key := asString(param["in"]) + "\x00" + name
		if i, seen := index[key]; seen {
			merged[i] = param
			return
		}
		index[key] = len(merged)
		merged = append(merged, param)
	}

	for _, p := range shared {
		add(p)
	}
	for _, p := range own {
		add(p)
	}
	return merged
}

// requestBodySchema returns a copy of the JSON request body schema,
// following at most one $ref into components.schemas. A reference that
// cannot be resolved yields an empty schema. Refs nested inside the
// resolved schema are left as they are.
func requestBodySchema(doc Document, op map[string]any) (map[string]any, bool) {
	content := asMap(asMap(op["requestBody"])["content"])
	raw, ok := asMap(content["application/json"])["schema"].(map[string]any)
	if !ok {
		return nil, false
	}

	if ref := asString(raw["$ref"]); ref != "" {
		target, found := resolveRef(ref, "schemas", doc.Schemas())
		if !found {
			return map[string]any{}, true
		}
		raw = target
	}
	return clone(raw).(map[string]any), true
}

// dedupe removes duplicates keeping first-seen order.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
