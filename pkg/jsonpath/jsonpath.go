// Package jsonpath evaluates a practical subset of JSONPath against JSON
// documents.
//
// Supported syntax: the optional $ root, dotted keys, bracketed keys
// ($['a.b'] or $["a"]), array indexes ($.items[0]) and the wildcard [*],
// which yields every element. Expressions are translated once into gjson
// paths, so a compiled Path is cheap to evaluate repeatedly.
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Path is a compiled JSONPath expression. It is safe for concurrent use.
type Path struct {
	expr  string
	gpath string
}

// Compile translates a JSONPath expression.
func Compile(expr string) (*Path, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("empty JSONPath expression")
	}
	gpath, err := translate(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", expr, err)
	}
	return &Path{expr: expr, gpath: gpath}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string) *Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original expression.
func (p *Path) String() string {
	return p.expr
}

// Lookup returns the value at the path as a string. JSON null is returned
// as "null". The second result is false when the path does not exist.
func (p *Path) Lookup(json string) (string, bool) {
	result := gjson.Get(json, p.gpath)
	if !result.Exists() {
		return "", false
	}
	if result.Type == gjson.Null {
		return "null", true
	}
	return result.String(), true
}

// Values returns every value at the path. Arrays, including the result of a
// wildcard, are flattened one level.
func (p *Path) Values(json string) []string {
	result := gjson.Get(json, p.gpath)
	if !result.Exists() {
		return nil
	}
	if !result.IsArray() {
		return []string{result.String()}
	}

	var values []string
	result.ForEach(func(_, v gjson.Result) bool {
		values = append(values, v.String())
		return true
	})
	return values
}

// Extract evaluates expr against json.
func Extract(json string, expr string) (string, error) {
	if json == "" {
		return "", fmt.Errorf("empty JSON string")
	}
	p, err := Compile(expr)
	if err != nil {
		return "", err
	}
	if !gjson.Valid(json) {
		return "", fmt.Errorf("invalid JSON")
	}
	value, ok := p.Lookup(json)
	if !ok {
		return "", fmt.Errorf("path not found: %s", expr)
	}
	return value, nil
}

// translate converts a JSONPath expression to gjson syntax.
//
// JSONPath: $.users[0].name   gjson: users.0.name
// JSONPath: $.users[*].id     gjson: users.#.id
func translate(expr string) (string, error) {
	rest := strings.TrimSpace(expr)
	rest = strings.TrimPrefix(rest, "$")

	var parts []string
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			if end == 0 {
				return "", fmt.Errorf("empty key")
			}
			parts = append(parts, escape(rest[:end]))
			rest = rest[end:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return "", fmt.Errorf("unterminated bracket")
			}
			inner := strings.TrimSpace(rest[1:end])
			rest = rest[end+1:]
			switch {
			case inner == "*":
				parts = append(parts, "#")
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
				parts = append(parts, escape(inner[1:len(inner)-1]))
			case inner != "" && strings.Trim(inner, "0123456789") == "":
				parts = append(parts, inner)
			default:
				return "", fmt.Errorf("unsupported selector [%s]", inner)
			}
		default:
			// Keys without a leading dot, e.g. "name" or "a.b".
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			parts = append(parts, escape(rest[:end]))
			rest = rest[end:]
		}
	}

	if len(parts) == 0 {
		return "@this", nil
	}
	return strings.Join(parts, "."), nil
}

var gjsonSpecial = strings.NewReplacer(
	`\`, `\\`,
	".", `\.`,
	"*", `\*`,
	"?", `\?`,
	"#", `\#`,
	"|", `\|`,
	"@", `\@`,
)

func escape(key string) string {
	return gjsonSpecial.Replace(key)
}
