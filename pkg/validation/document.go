package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is the structural contract for raw definition documents
// submitted over the API. Semantic checks (reachability, type-specific
// config, variable types) run afterwards in Validator.
const definitionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "graph"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"version": {"type": "string"},
		"category": {"type": "string"},
		"trigger_config": {"type": "object"},
		"graph": {
			"type": "object",
			"required": ["steps"],
			"properties": {
				"steps": {
					"type": "array",
					"minItems": 1,
					"items": {
						"type": "object",
						"required": ["id", "name", "type"],
						"properties": {
							"id": {"type": "string"},
							"name": {"type": "string"},
							"type": {"type": "string"},
							"kind": {"type": "string", "enum": ["start", "task", "end"]},
							"config": {"type": "object"}
						}
					}
				},
				"connections": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["from", "to"],
						"properties": {
							"id": {"type": "string"},
							"from": {"type": "string"},
							"to": {"type": "string"},
							"condition": {"type": "string"}
						}
					}
				},
				"variables": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["name", "type"],
						"properties": {
							"name": {"type": "string"},
							"type": {"type": "string"}
						}
					}
				}
			}
		}
	}
}`

// ValidateDocument checks a raw JSON definition document against the
// structural schema, returning every schema violation at once.
func ValidateDocument(document []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(definitionSchema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate definition document: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}

	return &Error{Violations: violations}
}
