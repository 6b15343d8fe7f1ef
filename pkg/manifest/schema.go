// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaCache holds the compiled manifest schema to avoid recompilation.
var schemaCache *jschema.Schema

// GenerateSchema generates a JSON Schema from the Manifest struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Manifest{})

	schema.ID = jsonschema.ID(SchemaID())
	schema.Title = "Toolhost Plugin Manifest"
	schema.Description = "Schema for plugin capability manifests"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// ValidateSchema validates a manifest JSON document against the generated
// manifest schema. This is a structural check; Parse performs the stricter
// semantic validation (id patterns, semver gates, uniqueness).
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("manifest data is empty")
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	sch, err := getCompiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// getCompiledSchema returns the cached compiled schema or compiles it.
func getCompiledSchema() (*jschema.Schema, error) {
	if schemaCache != nil {
		return schemaCache, nil
	}

	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}

	var schemaData any
	if err := json.Unmarshal(schemaBytes, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaData); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	schemaCache = sch
	return sch, nil
}

// ResetSchemaCache clears the cached schema. Used for testing.
func ResetSchemaCache() {
	schemaCache = nil
}

// SchemaID returns the schema $id for manifest documents.
func SchemaID() string {
	return "https://toolhost.dev/schemas/manifest.schema.json"
}

// CompileParameters compiles a tool's parameter declaration as a real JSON
// Schema. Called at registry construction and in tests so that a descriptor
// that would not validate anything is caught before it is ever advertised.
func CompileParameters(t Tool) (*jschema.Schema, error) {
	params := t.Parameters
	if params.Type == "" {
		params.Type = "object"
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("tool %s: marshal parameters: %w", t.ID, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tool %s: parameters are not valid JSON: %w", t.ID, err)
	}

	c := jschema.NewCompiler()
	resource := fmt.Sprintf("%s.params.json", t.ID)
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("tool %s: add parameter schema: %w", t.ID, err)
	}

	sch, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("tool %s: compile parameter schema: %w", t.ID, err)
	}

	return sch, nil
}
