package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks api_specific_parameters against per-provider JSON
// Schemas. Each schemas/<provider>.json file is the schema for that
// provider's parameter object.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator loads and compiles all *.json schema files from schemaDir.
func NewValidator(schemaDir string) (*Validator, error) {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", schemaDir, err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		provider := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		path := filepath.Join(schemaDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		id := "https://lumagen.dev/schemas/" + provider + ".params"
		schemas[provider], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", provider, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// ValidateParams hard-rejects parameters that do not match the provider's
// schema. Empty parameters always pass; a provider without a schema accepts
// anything (the provider endpoint does its own checking).
func (v *Validator) ValidateParams(provider string, params json.RawMessage) error {
	if len(params) == 0 {
		return nil
	}
	schema, ok := v.schemas[provider]
	if !ok {
		return nil
	}
	var doc interface{}
	if err := json.Unmarshal(params, &doc); err != nil {
		return fmt.Errorf("%w: api_specific_parameters is not valid JSON", ErrValidation)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
