package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a decoded OpenAPI document. Only paths, components and info
// are consulted; everything else is carried untouched.
type Document map[string]any

// ErrNotObject is returned when a document's root is not a JSON/YAML object.
var ErrNotObject = errors.New("openapi document root must be an object")

// Load decodes an OpenAPI document from JSON or YAML.
func Load(data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrNotObject
	}

	var raw any
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decoding openapi json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decoding openapi yaml: %w", err)
		}
		raw = normalizeYAML(raw)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Document(obj), nil
}

// LoadFile reads and decodes an OpenAPI document from disk.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading openapi document: %w", err)
	}
	doc, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Paths returns the document's path items keyed by path template.
func (d Document) Paths() map[string]any {
	return asMap(d["paths"])
}

// Schemas returns components.schemas.
func (d Document) Schemas() map[string]any {
	return asMap(asMap(d["components"])["schemas"])
}

// Parameters returns components.parameters.
func (d Document) Parameters() map[string]any {
	return asMap(asMap(d["components"])["parameters"])
}

// Title returns info.title, or "".
func (d Document) Title() string {
	s, _ := asMap(d["info"])["title"].(string)
	return s
}

// Version returns info.version, or "".
func (d Document) Version() string {
	s, _ := asMap(d["info"])["version"].(string)
	return s
}

// resolveRef follows a single local reference of the form
// "#/components/<section>/<name>" against section. Anything else misses.
func resolveRef(ref string, section string, defs map[string]any) (map[string]any, bool) {
	prefix := "#/components/" + section + "/"
	if !strings.HasPrefix(ref, prefix) {
		return nil, false
	}
	name := unescapePointer(strings.TrimPrefix(ref, prefix))
	target, ok := defs[name].(map[string]any)
	return target, ok
}

// unescapePointer decodes a JSON pointer token (RFC 6901).
func unescapePointer(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}

// normalizeYAML converts yaml.v3 output into the shapes encoding/json
// produces so the compiler only deals with map[string]any and []any.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// clone deep-copies maps and slices so compiled tools never alias the
// source document.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	default:
		return v
	}
}
