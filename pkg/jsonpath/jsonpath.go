// Package jsonpath resolves JSONPath-style expressions against JSON response
// bodies and compares the resolved values with expected scalars.
package jsonpath

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNotFound is returned when a path does not resolve to any value.
var ErrNotFound = errors.New("path not found")

// Lookup resolves path against a JSON document.
//
// Both JSONPath ($.users[0].name) and gjson (users.0.name) forms are accepted.
func Lookup(body []byte, path string) (gjson.Result, error) {
	if len(body) == 0 {
		return gjson.Result{}, fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return gjson.Result{}, fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON document")
	}

	result := gjson.GetBytes(body, ToGjsonPath(path))
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return result, nil
}

// Extract returns the value at path rendered as a string. JSON null is
// rendered as "null".
func Extract(body []byte, path string) (string, error) {
	result, err := Lookup(body, path)
	if err != nil {
		return "", err
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// Equal reports whether a resolved value equals an expected scalar decoded
// from configuration (string, bool, number or nil).
func Equal(result gjson.Result, expected interface{}) bool {
	switch want := expected.(type) {
	case nil:
		return result.Type == gjson.Null
	case bool:
		return (result.Type == gjson.True || result.Type == gjson.False) && result.Bool() == want
	case string:
		return result.Type == gjson.String && result.Str == want
	case int:
		return numberEqual(result, float64(want))
	case int64:
		return numberEqual(result, float64(want))
	case uint64:
		return numberEqual(result, float64(want))
	case float64:
		return numberEqual(result, want)
	default:
		// Fall back to comparing the textual form.
		return result.String() == fmt.Sprint(want)
	}
}

func numberEqual(result gjson.Result, want float64) bool {
	if result.Type != gjson.Number {
		return false
	}
	return math.Abs(result.Num-want) < 1e-9
}

// ToGjsonPath converts a JSONPath expression to the gjson path syntax.
// Paths that are already in gjson form are returned unchanged.
func ToGjsonPath(path string) string {
	if path == "$" {
		return "@this"
	}

	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return "@this"
	}
	path = strings.TrimPrefix(path, ".")

	// $['name'] and $["name"]
	path = strings.ReplaceAll(path, "['", ".")
	path = strings.ReplaceAll(path, "']", "")
	path = strings.ReplaceAll(path, "[\"", ".")
	path = strings.ReplaceAll(path, "\"]", "")

	// [n] -> .n
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				b.WriteString(path[i:])
				i = len(path)
				continue
			}
			index := path[i+1 : i+end]
			if _, err := strconv.Atoi(index); err != nil {
				b.WriteString(path[i : i+end+1])
			} else {
				if b.Len() > 0 {
					b.WriteByte('.')
				}
				b.WriteString(index)
			}
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return strings.TrimPrefix(b.String(), ".")
}
