// Package schema validates JSON payloads against a JSON schema. A producer
// opts in with the JSONSchema option; validation happens locally before a
// payload is framed, on every backend.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator holds one compiled schema.
type Validator struct {
	compiled *jsonschema.Schema
}

// Compile compiles a schema definition once, at producer creation, so a bad
// schema fails fast instead of on the first send.
func Compile(definition []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(definition)); err != nil {
		return nil, fmt.Errorf("schema: failed to add schema resource: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("schema: failed to compile: %w", err)
	}
	return &Validator{compiled: compiled}, nil
}

// Validate checks one payload. The payload must itself be valid JSON.
func (v *Validator) Validate(payload []byte) error {
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("schema: payload is not valid JSON: %w", err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return fmt.Errorf("schema: validation failed: %w", err)
	}
	return nil
}
