package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeArgs(t *testing.T, raw string) map[string]any {
	t.Helper()
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		t.Fatalf("invalid test args %s: %v", raw, err)
	}
	return args
}

func TestTool_Validate(t *testing.T) {
	tool := &Tool{
		Name: "create_contact",
		Parameters: map[string]any{
			"type":                 "object",
			"additionalProperties": true,
			"required":             []string{"name", "email"},
			"properties": map[string]any{
				"name":  map[string]any{"type": "string"},
				"email": map[string]any{"type": "string"},
				"tier":  map[string]any{"type": "string", "enum": []any{"free", "pro"}},
				"seats": map[string]any{"type": "integer", "minimum": float64(1), "maximum": float64(50)},
				"score": map[string]any{"type": "number"},
				"vip":   map[string]any{"type": "boolean"},
				"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"address": map[string]any{
					"type":     "object",
					"required": []any{"city"},
					"properties": map[string]any{
						"city": map[string]any{"type": "string"},
					},
				},
			},
		},
	}

	tests := []struct {
		name    string
		args    string
		wantErr string
	}{
		{"valid", `{"name":"Ada","email":"ada@example.com"}`, ""},
		{"unknown keys accepted", `{"name":"Ada","email":"a@b","nickname":"countess"}`, ""},
		{"missing required", `{"name":"Ada"}`, "email: required field is missing"},
		{"wrong string type", `{"name":123,"email":"a@b"}`, "name: expected string"},
		{"enum", `{"name":"Ada","email":"a@b","tier":"gold"}`, "tier: value must be one of"},
		{"enum ok", `{"name":"Ada","email":"a@b","tier":"pro"}`, ""},
		{"integer decimal", `{"name":"Ada","email":"a@b","seats":2.5}`, "seats: expected integer, got decimal number"},
		{"integer below minimum", `{"name":"Ada","email":"a@b","seats":0}`, "seats: value 0 is less than minimum 1"},
		{"integer above maximum", `{"name":"Ada","email":"a@b","seats":51}`, "seats: value 51 is greater than maximum 50"},
		{"number type", `{"name":"Ada","email":"a@b","score":"high"}`, "score: expected number"},
		{"boolean type", `{"name":"Ada","email":"a@b","vip":"yes"}`, "vip: expected boolean"},
		{"array items", `{"name":"Ada","email":"a@b","tags":["a",2]}`, "tags[1]: expected string"},
		{"array type", `{"name":"Ada","email":"a@b","tags":"a"}`, "tags: expected array"},
		{"nested required", `{"name":"Ada","email":"a@b","address":{}}`, "address.city: required field is missing"},
		{"nested object type", `{"name":"Ada","email":"a@b","address":"London"}`, "address: expected object"},
		{"null is skipped", `{"name":"Ada","email":"a@b","seats":null}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tool.Validate(decodeArgs(t, tt.args))
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestTool_Validate_CompiledFixture(t *testing.T) {
	tools := toolsByName(Compile(loadFixture(t)))
	tool := tools["create_account"]

	if err := tool.Validate(map[string]any{"name": "Initech"}); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
	if err := tool.Validate(map[string]any{}); err == nil {
		t.Error("expected error for missing name")
	}

	list := tools["list_accounts"]
	if err := list.Validate(map[string]any{"limit": 500}); err == nil {
		t.Error("expected error for limit above maximum")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var empty ValidationErrors
	if empty.Error() != "" {
		t.Errorf("empty Error() = %q, want empty", empty.Error())
	}

	one := ValidationErrors{{Path: "a", Message: "bad"}}
	if one.Error() != "a: bad" {
		t.Errorf("single Error() = %q, want %q", one.Error(), "a: bad")
	}

	many := ValidationErrors{{Path: "a", Message: "bad"}, {Message: "worse"}}
	want := "validation failed:\n  - a: bad\n  - worse"
	if many.Error() != want {
		t.Errorf("Error() = %q, want %q", many.Error(), want)
	}
}

func TestValidateValue_ReturnsValidationErrors(t *testing.T) {
	err := ValidateValue(map[string]any{"type": "string"}, 4)

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 1 {
		t.Errorf("len = %d, want 1", len(verrs))
	}
}
