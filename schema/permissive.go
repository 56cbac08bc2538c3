package schema

// Permissive walks a JSON schema and sets additionalProperties to true on
// every node that declares properties without saying whether extra keys
// are allowed. An explicit additionalProperties, including false, is kept.
// The schema is modified in place.
func Permissive(node map[string]any) {
	if node == nil {
		return
	}

	if props, ok := node["properties"].(map[string]any); ok {
		if _, set := node["additionalProperties"]; !set {
			node["additionalProperties"] = true
		}
		for _, prop := range props {
			Permissive(asMap(prop))
		}
	}

	for _, key := range []string{"items", "additionalProperties", "not", "contains"} {
		switch child := node[key].(type) {
		case map[string]any:
			Permissive(child)
		case []any:
			for _, item := range child {
				Permissive(asMap(item))
			}
		}
	}

	for _, key := range []string{"allOf", "anyOf", "oneOf", "prefixItems"} {
		for _, member := range asSlice(node[key]) {
			Permissive(asMap(member))
		}
	}

	for _, key := range []string{"patternProperties", "$defs", "definitions"} {
		for _, child := range asMap(node[key]) {
			Permissive(asMap(child))
		}
	}
}
