package schema

import (
	"regexp"
	"strings"
)

// MaxToolNameLength is the longest tool name the compiler emits.
const MaxToolNameLength = 64

var (
	trailingPlaceholder = regexp.MustCompile(`\{[^}]*\}$`)
	placeholder         = regexp.MustCompile(`\{[^}]*\}`)
	nonWord             = regexp.MustCompile(`\W+`)
	underscores         = regexp.MustCompile(`_{2,}`)
)

// ToolName derives a tool name from an operation. The operationId wins when
// present; otherwise the name is built from the method and path template.
// A trailing path placeholder becomes the literal token "id" and other
// placeholders are dropped. Underscore runs are collapsed only in the
// method and path fallback, so an operationId such as accounts__list keeps
// its separators. The result always matches [A-Za-z0-9_]+ and is
// at most MaxToolNameLength bytes.
func ToolName(method, path, operationID string) string {
	fallback := operationID == ""
	raw := operationID
	if fallback {
		raw = strings.ToLower(method) + "_" + path
	}

	name := trailingPlaceholder.ReplaceAllString(raw, "id")
	name = placeholder.ReplaceAllString(name, "")
	name = nonWord.ReplaceAllString(name, "_")
	if fallback {
		name = underscores.ReplaceAllString(name, "_")
	}
	name = strings.TrimSuffix(name, "_")

	if name == "" {
		name = "op"
	}
	if len(name) > MaxToolNameLength {
		name = name[:MaxToolNameLength]
	}
	return name
}
