package schema

import (
	"fmt"
	"math"
	"strings"
)

// Schema type names understood by the validator.
const (
	typeObject  = "object"
	typeArray   = "array"
	typeString  = "string"
	typeInteger = "integer"
	typeNumber  = "number"
	typeBoolean = "boolean"
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Path    string // JSON path to the invalid field (e.g., "contact.email")
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate checks args against the tool's parameter schema.
//
// Only required keys, primitive types, enums and numeric bounds are checked.
// Unknown keys are always accepted: compiled schemas are permissive and the
// business layer is the authority on what a call may contain.
func (t *Tool) Validate(args map[string]any) error {
	return ValidateValue(t.Parameters, args)
}

// ValidateValue validates a decoded JSON value against a schema node.
func ValidateValue(node map[string]any, value any) error {
	var errs ValidationErrors
	validate(node, "", value, &errs)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validate(node map[string]any, path string, value any, errs *ValidationErrors) {
	if node == nil || value == nil {
		return
	}

	switch asString(node["type"]) {
	case typeObject:
		validateObject(node, path, value, errs)
	case typeArray:
		validateArray(node, path, value, errs)
	case typeString:
		validateString(node, path, value, errs)
	case typeInteger:
		validateInteger(node, path, value, errs)
	case typeNumber:
		validateNumber(node, path, value, errs)
	case typeBoolean:
		if _, ok := value.(bool); !ok {
			*errs = append(*errs, &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("expected boolean, got %T", value),
			})
		}
	}
}

func validateObject(node map[string]any, path string, value any, errs *ValidationErrors) {
	obj, ok := value.(map[string]any)
	if !ok {
		*errs = append(*errs, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("expected object, got %T", value),
		})
		return
	}

	for _, req := range requiredNames(node["required"]) {
		if _, exists := obj[req]; !exists {
			*errs = append(*errs, &ValidationError{
				Path:    joinPath(path, req),
				Message: "required field is missing",
			})
		}
	}

	for name, prop := range asMap(node["properties"]) {
		if val, exists := obj[name]; exists {
			validate(asMap(prop), joinPath(path, name), val, errs)
		}
	}
}

func validateArray(node map[string]any, path string, value any, errs *ValidationErrors) {
	items, ok := value.([]any)
	if !ok {
		*errs = append(*errs, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("expected array, got %T", value),
		})
		return
	}

	itemSchema := asMap(node["items"])
	if itemSchema == nil {
		return
	}
	for i, item := range items {
		validate(itemSchema, fmt.Sprintf("%s[%d]", path, i), item, errs)
	}
}

func validateString(node map[string]any, path string, value any, errs *ValidationErrors) {
	str, ok := value.(string)
	if !ok {
		*errs = append(*errs, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("expected string, got %T", value),
		})
		return
	}

	enum := asSlice(node["enum"])
	if len(enum) == 0 {
		return
	}
	for _, e := range enum {
		if e == str {
			return
		}
	}
	*errs = append(*errs, &ValidationError{
		Path:    path,
		Message: fmt.Sprintf("value must be one of: %v", enum),
	})
}

func validateInteger(node map[string]any, path string, value any, errs *ValidationErrors) {
	num, ok := toFloat(value)
	if !ok {
		*errs = append(*errs, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("expected integer, got %T", value),
		})
		return
	}
	if num != math.Trunc(num) {
		*errs = append(*errs, &ValidationError{
			Path:    path,
			Message: "expected integer, got decimal number",
		})
		return
	}
	validateBounds(node, path, num, errs)
}

func validateNumber(node map[string]any, path string, value any, errs *ValidationErrors) {
	num, ok := toFloat(value)
	if !ok {
		*errs = append(*errs, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("expected number, got %T", value),
		})
		return
	}
	validateBounds(node, path, num, errs)
}

func validateBounds(node map[string]any, path string, num float64, errs *ValidationErrors) {
	if minimum, ok := toFloat(node["minimum"]); ok && num < minimum {
		*errs = append(*errs, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v is less than minimum %v", num, minimum),
		})
	}
	if maximum, ok := toFloat(node["maximum"]); ok && num > maximum {
		*errs = append(*errs, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v is greater than maximum %v", num, maximum),
		})
	}
}

// requiredNames accepts both compiled ([]string) and decoded ([]any) lists.
func requiredNames(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		names := make([]string, 0, len(t))
		for _, n := range t {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}
