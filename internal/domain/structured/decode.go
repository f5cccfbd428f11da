package structured

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON schema describing the shape a caller expects.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON schema document.
func CompileSchema(name, doc string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader([]byte(doc))); err != nil {
		return nil, fmt.Errorf("load schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema for package-level schema literals.
func MustCompileSchema(name, doc string) *Schema {
	s, err := CompileSchema(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// Validate checks a generic decoded value against the schema.
func (s *Schema) Validate(v any) error {
	if s == nil {
		return nil
	}
	return s.compiled.Validate(v)
}

// Decode extracts a JSON value from content, validates it against schema
// (nil skips validation) and unmarshals it into T. Candidate spans are tried
// in order until one fits.
func Decode[T any](content string, schema *Schema) (T, bool) {
	out, _, ok := DecodeRaw[T](content, schema)
	return out, ok
}

// DecodeRaw is Decode that also returns the JSON span the value came from.
func DecodeRaw[T any](content string, schema *Schema) (T, json.RawMessage, bool) {
	var zero T
	for _, raw := range candidates(content) {
		if schema != nil {
			var doc any
			if err := json.Unmarshal(raw, &doc); err != nil {
				continue
			}
			if err := schema.Validate(doc); err != nil {
				continue
			}
		}
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			continue
		}
		return out, raw, true
	}
	return zero, nil, false
}
