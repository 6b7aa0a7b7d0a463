package deep

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnparsableReply marks a model reply that could not be decoded into the
// expected shape. Callers must treat it as "no advisory available".
var ErrUnparsableReply = fmt.Errorf("unparsable model reply")

const resultSchemaJSON = `{
  "type": "object",
  "properties": {
    "content_type": {"type": "string"},
    "intents": {"type": "array", "items": {"type": "string"}},
    "actions": {"type": "array", "items": {"type": "string"}},
    "explanation": {"type": "string"}
  },
  "required": ["content_type", "intents", "actions", "explanation"]
}`

const hintsSchemaJSON = `{
  "type": "object",
  "properties": {
    "event": {"type": "string"},
    "people": {"type": "array", "items": {"type": "string"}},
    "products": {"type": "array", "items": {"type": "string"}},
    "websites": {"type": "array", "items": {"type": "string"}},
    "places": {"type": "array", "items": {"type": "string"}},
    "dates": {"type": "array", "items": {"type": "string"}},
    "prices": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	resultSchema = mustCompileSchema("result.json", resultSchemaJSON)
	hintsSchema  = mustCompileSchema("hints.json", hintsSchemaJSON)
)

func mustCompileSchema(name, raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

// parseResult decodes and validates a deep-analysis reply. The reply is
// validated against the schema before decoding so a wrong-shaped but
// syntactically valid reply is rejected the same way as malformed JSON.
func parseResult(reply string) (*Result, error) {
	if err := validateReply(resultSchema, reply); err != nil {
		return nil, err
	}
	var out Result
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableReply, err)
	}
	return &out, nil
}

func parseHints(reply string) (*Hints, error) {
	if err := validateReply(hintsSchema, reply); err != nil {
		return nil, err
	}
	var out Hints
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableReply, err)
	}
	return &out, nil
}

func validateReply(schema *jsonschema.Schema, reply string) error {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return fmt.Errorf("%w: empty reply", ErrUnparsableReply)
	}
	var v any
	if err := json.Unmarshal([]byte(reply), &v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsableReply, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsableReply, err)
	}
	return nil
}
