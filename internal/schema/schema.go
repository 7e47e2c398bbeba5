// Package schema validates JACS documents against the fixed named schema
// set. It wraps github.com/santhosh-tekuri/jsonschema/v5 over a compiled-in
// set of schema documents, so a JACS deployment never needs schemas shipped
// or fetched separately from the binary.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Names lists the fixed, closed set of schema names this module recognizes.
// Validate returns an error for any other name.
var Names = []string{
	"header", "agent", "signature", "agreement", "task", "message",
	"service", "unit", "action", "tool", "contact", "config", "eval",
	"node", "program", "embedding",
}

// Validator validates decoded JSON values against one of the fixed schemas.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// New compiles every schema in Names. A missing or malformed schema is
// fatal: schema collaborators never partially initialize.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	for _, name := range Names {
		path := "schemas/" + name + ".schema.json"
		data, err := schemaFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema: reading embedded schema %q: %w", name, err)
		}
		var doc interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("schema: parsing embedded schema %q: %w", name, err)
		}
		url := schemaURL(name)
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("schema: registering schema %q: %w", name, err)
		}
	}

	v := &Validator{compiled: make(map[string]*jsonschema.Schema, len(Names))}
	for _, name := range Names {
		sch, err := compiler.Compile(schemaURL(name))
		if err != nil {
			return nil, fmt.Errorf("schema: compiling schema %q: %w", name, err)
		}
		v.compiled[name] = sch
	}
	return v, nil
}

func schemaURL(name string) string {
	return fmt.Sprintf("https://schemas.jacs.dev/%s/v1/%s.schema.json", name, name)
}

// Validate checks doc (any JSON-decodable value) against the named schema.
func (v *Validator) Validate(name string, doc interface{}) error {
	v.mu.Lock()
	sch, ok := v.compiled[name]
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("schema: unknown schema %q", name)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema: %q validation failed: %w", name, err)
	}
	return nil
}

// ValidateBytes decodes raw JSON and validates it against the named schema.
func (v *Validator) ValidateBytes(name string, raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("schema: decoding document for %q validation: %w", name, err)
	}
	return v.Validate(name, doc)
}
