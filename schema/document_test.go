package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
		title   string
	}{
		{"json", `{"info":{"title":"JSON API","version":"2"},"paths":{}}`, nil, "JSON API"},
		{"yaml", "info:\n  title: YAML API\npaths: {}\n", nil, "YAML API"},
		{"json array", `[1,2]`, ErrNotObject, ""},
		{"yaml scalar", "just text", ErrNotObject, ""},
		{"empty", "  \n", ErrNotObject, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Load([]byte(tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if doc.Title() != tt.title {
				t.Errorf("Title() = %q, want %q", doc.Title(), tt.title)
			}
		})
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	if _, err := Load([]byte(`{"paths":`)); err == nil {
		t.Error("expected error for truncated json")
	}
}

func TestLoad_YAMLNonStringKeys(t *testing.T) {
	doc, err := Load([]byte("paths:\n  /codes:\n    get:\n      responses:\n        200:\n          description: ok\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	op := asMap(asMap(doc.Paths()["/codes"])["get"])
	if _, ok := asMap(op["responses"])["200"]; !ok {
		t.Errorf("responses = %v, want string key \"200\"", op["responses"])
	}
}

func TestLoadFile(t *testing.T) {
	doc := loadFixture(t)
	if doc.Title() != "Accounts API" {
		t.Errorf("Title() = %q, want %q", doc.Title(), "Accounts API")
	}
	if doc.Version() != "1.4.0" {
		t.Errorf("Version() = %q, want %q", doc.Version(), "1.4.0")
	}
	if len(doc.Schemas()) != 3 {
		t.Errorf("len(Schemas()) = %d, want 3", len(doc.Schemas()))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("[]"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); !errors.Is(err, ErrNotObject) {
		t.Errorf("LoadFile() error = %v, want ErrNotObject", err)
	}
}

func TestResolveRef(t *testing.T) {
	defs := map[string]any{
		"User":      map[string]any{"type": "object"},
		"a/b":       map[string]any{"type": "string"},
		"NotScheme": "string",
	}

	tests := []struct {
		ref   string
		found bool
	}{
		{"#/components/schemas/User", true},
		{"#/components/schemas/a~1b", true},
		{"#/components/schemas/Missing", false},
		{"#/components/schemas/NotScheme", false},
		{"#/definitions/User", false},
		{"other.yaml#/components/schemas/User", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			_, found := resolveRef(tt.ref, "schemas", defs)
			if found != tt.found {
				t.Errorf("resolveRef(%q) found = %v, want %v", tt.ref, found, tt.found)
			}
		})
	}
}
