package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// extractionSchemaJSON is the contract the model output must satisfy after
// coercion. A response that parses but violates it is treated like any other
// extraction failure.
const extractionSchemaJSON = `{
	"type": "object",
	"properties": {
		"subject": {"type": "string", "minLength": 1},
		"notes": {"type": ["string", "null"]},
		"event_datetime": {"type": ["string", "null"]},
		"location": {"type": ["string", "null"]},
		"organizer": {"type": ["string", "null"]},
		"recurring": {"type": ["boolean", "null"]}
	},
	"required": ["subject"]
}`

func compileExtractionSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(extractionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse extraction schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", doc); err != nil {
		return nil, fmt.Errorf("add extraction schema resource: %w", err)
	}
	schema, err := compiler.Compile("extraction.json")
	if err != nil {
		return nil, fmt.Errorf("compile extraction schema: %w", err)
	}
	return schema, nil
}

func validateExtraction(schema *jsonschema.Schema, raw json.RawMessage) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}
