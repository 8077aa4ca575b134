package plan

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaDoc is the JSON Schema for the top-level plan envelope. It enforces
// the shape every planner reply must have: an "actions" array whose elements
// each carry a "type" from the closed set. Per-variant required fields are
// checked again on the Go side in decodeAction, which is the authoritative
// pass and produces the precise per-field error messages surfaced to the
// planner's repair prompt.
const schemaDoc = `{
  "type": "object",
  "required": ["actions"],
  "properties": {
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {
            "enum": ["reply", "question", "ssh", "obsidian_write", "web_fetch",
                     "image_to_text", "voice_to_text", "opencode_serve",
                     "addon_install", "addon_create", "addon_run"]
          }
        }
      }
    }
  }
}`

var (
	compileOnce   sync.Once
	compiledPlan  *jsonschema.Schema
	compileErr    error
)

func planSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaDoc))
		if err != nil {
			compileErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("plan.json", doc); err != nil {
			compileErr = err
			return
		}
		compiledPlan, compileErr = c.Compile("plan.json")
	})
	return compiledPlan, compileErr
}

// validateEnvelope runs the coarse schema pass over the decoded JSON value
// (as produced by jsonschema.UnmarshalJSON, not encoding/json.Unmarshal, so
// that numbers compare correctly against the schema).
func validateEnvelope(v any) error {
	schema, err := planSchema()
	if err != nil {
		return err
	}
	return schema.Validate(v)
}

// jsonschemaUnmarshal decodes JSON the way the jsonschema package requires.
func jsonschemaUnmarshal(rawJSON string) (any, error) {
	return jsonschema.UnmarshalJSON(strings.NewReader(rawJSON))
}
