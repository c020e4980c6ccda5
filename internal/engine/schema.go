package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const payloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["asset", "timeframe"],
  "properties": {
    "asset": {"type": "string", "minLength": 1, "maxLength": 32},
    "timeframe": {"type": "string", "pattern": "^[0-9]+[smhdwSMHDW]$"},
    "code": {"type": "string"},
    "startDate": {"type": "string"},
    "endDate": {"type": "string"},
    "cash": {"type": "number", "minimum": 0},
    "feeBps": {"type": "number", "minimum": 0, "maximum": 1000},
    "slippageBps": {"type": "number", "minimum": 0, "maximum": 1000}
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledPayloadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("payload.json", strings.NewReader(payloadSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("payload.json")
	})
	return schemaCompiled, schemaErr
}

// ValidatePayload checks p against the payload schema.
func ValidatePayload(p Payload) error {
	schema, err := compiledPayloadSchema()
	if err != nil {
		return fmt.Errorf("compile payload schema: %w", err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
