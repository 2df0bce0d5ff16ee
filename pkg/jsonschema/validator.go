// Package jsonschema validates decoded JSON documents against a JSON Schema
// and reports every violation with its instance location.
package jsonschema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Violation is a single schema violation.
type Violation struct {
	// Location is the JSON pointer of the offending value ("" for the root).
	Location string

	Message string
}

func (v *Violation) Error() string {
	if v.Location == "" {
		return "validation error at root: " + v.Message
	}
	return fmt.Sprintf("validation error at %s: %s", v.Location, v.Message)
}

// Field returns the location in dotted form, e.g. /load/stages/0/target
// becomes load.stages[0].target.
func (v *Violation) Field() string {
	return PointerToField(v.Location)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []*Violation

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled JSON Schema.
type Schema struct {
	schema *jsonschema.Schema
}

// Compile compiles a schema document. name is used as the resource URL.
func Compile(name, schemaStr string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource(name, strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: schema}, nil
}

// MustCompile is like Compile but panics on error. It is meant for schemas
// embedded in the binary.
func MustCompile(name, schemaStr string) *Schema {
	s, err := Compile(name, schemaStr)
	if err != nil {
		panic(err)
	}
	return s
}

// ValidateValue validates a value as produced by encoding/json decoding into
// interface{}. It returns nil when the value is valid.
func (s *Schema) ValidateValue(v interface{}) ValidationErrors {
	err := s.schema.Validate(v)
	if err == nil {
		return nil
	}

	var validationErr *jsonschema.ValidationError
	if errors.As(err, &validationErr) {
		return extractValidationErrors(validationErr)
	}
	return ValidationErrors{{Message: err.Error()}}
}

// Validate validates a JSON string against a JSON Schema.
// Returns true if the JSON is valid, false otherwise.
// If there's an error in the schema or JSON parsing, it returns an error.
func Validate(jsonStr, schemaStr string) (bool, error) {
	valid, errs := ValidateWithErrors(jsonStr, schemaStr)
	if valid {
		return true, nil
	}
	// A single location-less error means the schema or document is broken.
	if len(errs) == 1 && errs[0].Location == "" && strings.HasPrefix(errs[0].Message, "invalid ") {
		return false, errors.New(errs[0].Message)
	}
	return false, nil
}

// ValidateWithErrors validates a JSON string against a JSON Schema and
// returns every violation found.
func ValidateWithErrors(jsonStr, schemaStr string) (bool, ValidationErrors) {
	schema, err := Compile("schema.json", schemaStr)
	if err != nil {
		return false, ValidationErrors{{Message: err.Error()}}
	}

	var jsonData interface{}
	if err := json.Unmarshal([]byte(jsonStr), &jsonData); err != nil {
		return false, ValidationErrors{{Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	if errs := schema.ValidateValue(jsonData); len(errs) > 0 {
		return false, errs
	}
	return true, nil
}

// extractValidationErrors flattens the error tree into its leaves, which
// carry the specific messages.
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	if len(err.Causes) == 0 {
		return ValidationErrors{{Location: err.InstanceLocation, Message: err.Message}}
	}

	var errs ValidationErrors
	for _, cause := range err.Causes {
		errs = append(errs, extractValidationErrors(cause)...)
	}
	return errs
}

// PointerToField converts a JSON pointer to a dotted field path.
func PointerToField(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return ""
	}

	var sb strings.Builder
	for i, token := range strings.Split(pointer, "/") {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
		if isIndex(token) {
			sb.WriteString("[" + token + "]")
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(token)
	}
	return sb.String()
}

func isIndex(token string) bool {
	if token == "" {
		return false
	}
	for _, c := range token {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
