package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var manifestSchema []byte

const errorFormat = "  - %s"

// SchemaValidationError represents a validation error from JSON schema validation.
type SchemaValidationError struct {
	Field       string
	Description string
	Value       interface{}
}

// Error implements the error interface.
func (e SchemaValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (value: %v)", e.Field, e.Description, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// SchemaValidationResult contains the results of schema validation.
type SchemaValidationResult struct {
	Valid  bool
	Errors []SchemaValidationError
}

// Schema returns the embedded manifest JSON schema.
func Schema() []byte {
	return manifestSchema
}

// ValidateWithSchema validates YAML data against the manifest schema.
func ValidateWithSchema(yamlData []byte) (*SchemaValidationResult, error) {
	var data interface{}
	if err := yaml.Unmarshal(yamlData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(manifestSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	validationResult := &SchemaValidationResult{
		Valid:  result.Valid(),
		Errors: make([]SchemaValidationError, 0),
	}
	for _, e := range result.Errors() {
		validationResult.Errors = append(validationResult.Errors, SchemaValidationError{
			Field:       e.Field(),
			Description: e.Description(),
			Value:       e.Value(),
		})
	}
	return validationResult, nil
}

// ValidateManifest validates YAML data against the schema and returns a
// single error listing every violation.
func ValidateManifest(yamlData []byte) error {
	result, err := ValidateWithSchema(yamlData)
	if err != nil {
		return err
	}
	if result.Valid {
		return nil
	}
	messages := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		messages = append(messages, fmt.Sprintf(errorFormat, e.Error()))
	}
	return fmt.Errorf("%s manifest does not match schema:\n%s", Kind, strings.Join(messages, "\n"))
}
