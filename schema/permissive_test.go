package schema

import (
	"reflect"
	"testing"
)

func TestPermissive(t *testing.T) {
	node := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"properties": map[string]any{"type": "string"},
			"child": map[string]any{
				"type":       "object",
				"properties": map[string]any{"x": map[string]any{"type": "string"}},
			},
			"closed": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           map[string]any{"y": map[string]any{"type": "string"}},
			},
			"list": map[string]any{
				"type": "array",
				"items": map[string]any{
					"properties": map[string]any{"z": map[string]any{}},
				},
			},
			"choice": map[string]any{
				"oneOf": []any{
					map[string]any{"properties": map[string]any{"a": map[string]any{}}},
					"not a schema",
				},
			},
		},
	}

	Permissive(node)

	props := node["properties"].(map[string]any)
	checks := []struct {
		name string
		node map[string]any
		want any
	}{
		{"root", node, true},
		{"child", props["child"].(map[string]any), true},
		{"closed", props["closed"].(map[string]any), false},
		{"items", props["list"].(map[string]any)["items"].(map[string]any), true},
		{"oneOf", props["choice"].(map[string]any)["oneOf"].([]any)[0].(map[string]any), true},
	}
	for _, c := range checks {
		if got := c.node["additionalProperties"]; got != c.want {
			t.Errorf("%s: additionalProperties = %v, want %v", c.name, got, c.want)
		}
	}

	// A property literally named "properties" is a schema, not a keyword.
	want := map[string]any{"type": "string"}
	if !reflect.DeepEqual(props["properties"], want) {
		t.Errorf("properties property = %v, want %v", props["properties"], want)
	}
}

func TestPermissive_AdditionalPropertiesSchema(t *testing.T) {
	node := map[string]any{
		"type": "object",
		"additionalProperties": map[string]any{
			"type":       "object",
			"properties": map[string]any{"k": map[string]any{}},
		},
	}

	Permissive(node)

	extra := node["additionalProperties"].(map[string]any)
	if extra["additionalProperties"] != true {
		t.Errorf("nested additionalProperties = %v, want true", extra["additionalProperties"])
	}
}

func TestPermissive_LeavesLeavesAlone(t *testing.T) {
	node := map[string]any{"type": "string"}
	Permissive(node)
	if _, ok := node["additionalProperties"]; ok {
		t.Error("schemas without properties must not gain additionalProperties")
	}
	Permissive(nil)
}
