// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package seed

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// schemaCache holds the compiled schema to avoid recompilation.
var schemaCache *jschema.Schema

// GenerateSchema generates a JSON Schema from the seed File struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&File{})

	schema.ID = jsonschema.ID(SchemaID())
	schema.Title = "Gatehouse Seed File"
	schema.Description = "Schema for role/grant seed files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}
	return data, nil
}

// ValidateSchema validates YAML data against the seed JSON Schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return oops.Code("SEED_INVALID").Errorf("seed data is empty")
	}

	var yamlData any
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return oops.Code("SEED_INVALID").With("operation", "parse yaml").Wrap(err)
	}

	// yaml.Unmarshal yields map[string]any, but nested values need the
	// same treatment recursively before the validator sees them.
	jsonData := convertToJSONTypes(yamlData)

	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	if err := sch.Validate(jsonData); err != nil {
		return oops.Code("SEED_INVALID").With("operation", "schema validation").Wrap(err)
	}

	return nil
}

// compiledSchema returns the cached compiled schema or compiles it.
func compiledSchema() (*jschema.Schema, error) {
	if schemaCache != nil {
		return schemaCache, nil
	}

	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}

	var schemaData any
	if err := json.Unmarshal(schemaBytes, &schemaData); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("operation", "parse schema json").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaData); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("operation", "add resource").Wrap(err)
	}

	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}

	schemaCache = sch
	return sch, nil
}

func convertToJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v := range val {
			result[k] = convertToJSONTypes(v)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v := range val {
			result[i] = convertToJSONTypes(v)
		}
		return result
	case string, int, int64, float64, bool, nil:
		return val
	default:
		if b, err := json.Marshal(val); err == nil {
			var result any
			if err := json.Unmarshal(b, &result); err == nil {
				return result
			}
		}
		return val
	}
}

// ResetSchemaCache clears the cached schema. Used for testing.
func ResetSchemaCache() {
	schemaCache = nil
}

// SchemaID returns the schema $id for use in seed files.
func SchemaID() string {
	return "https://gatehouse.dev/schemas/seed.schema.json"
}

// FormatSchemaError trims the wrapping prefix off a validation error
// for display.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.Index(msg, "schema validation:"); idx >= 0 {
		msg = strings.TrimSpace(msg[idx+len("schema validation:"):])
	}
	return msg
}
