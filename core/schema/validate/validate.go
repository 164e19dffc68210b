package validate

import (
	"bufio"
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kaptinlin/jsonschema"
)

const (
	SchemaView           = "view"
	SchemaRecipe         = "recipe"
	SchemaContextPlan    = "context_plan"
	SchemaRegressProfile = "regress_profile"
)

//go:embed schemas/*.schema.json
var embeddedSchemas embed.FS

// Names lists the embedded schema names.
func Names() []string {
	return []string{SchemaView, SchemaRecipe, SchemaContextPlan, SchemaRegressProfile}
}

func ValidateJSONFile(name, jsonPath string) error {
	schema, err := loadSchema(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("read json: %w", err)
	}
	return validateJSON(schema, data)
}

func ValidateJSON(name string, data []byte) error {
	schema, err := loadSchema(name)
	if err != nil {
		return err
	}
	return validateJSON(schema, data)
}

// ValidateValue encodes value and validates it against the named schema.
func ValidateValue(name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return ValidateJSON(name, data)
}

func ValidateJSONLFile(name, jsonlPath string) error {
	schema, err := loadSchema(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(jsonlPath)
	if err != nil {
		return fmt.Errorf("read jsonl: %w", err)
	}
	return validateJSONL(schema, data)
}

func ValidateJSONL(name string, data []byte) error {
	schema, err := loadSchema(name)
	if err != nil {
		return err
	}
	return validateJSONL(schema, data)
}

func loadSchema(name string) (*jsonschema.Schema, error) {
	data, err := embeddedSchemas.ReadFile("schemas/" + name + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("unknown schema %q: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

func validateJSON(schema *jsonschema.Schema, data []byte) error {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}

func validateJSONL(schema *jsonschema.Schema, data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		if err := validateJSON(schema, b); err != nil {
			return fmt.Errorf("jsonl line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read jsonl: %w", err)
	}
	return nil
}
