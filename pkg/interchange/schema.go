package interchange

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// envelopeSchema is the structural contract every emitted bundle must
// satisfy: the fixed envelope keys plus the minimum shape of a construct
// entry. Per-kind field validation happens in the elaborator itself
// (pass 4/5); this schema is the outer safety net for anything that
// reaches interchange from outside this toolchain (e.g. a hand-crafted
// bundle used to probe evaluator behavior, per spec §8 boundary note).
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["constructs", "id", "kind", "tenor"],
  "properties": {
    "kind": {"const": "Bundle"},
    "id": {"type": "string", "minLength": 1},
    "tenor": {"type": "string", "minLength": 1},
    "constructs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind", "id", "provenance"],
        "properties": {
          "kind": {"type": "string", "minLength": 1},
          "id": {"type": "string", "minLength": 1},
          "provenance": {
            "type": "object",
            "required": ["file", "line"],
            "properties": {
              "file": {"type": "string"},
              "line": {"type": "integer"}
            }
          }
        }
      }
    }
  }
}`

const schemaURL = "https://tenor.schemas.local/bundle.schema.json"

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
	compiledSchemaOnce sync.Once
)

func compile() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(envelopeSchema)); err != nil {
			compiledSchemaErr = fmt.Errorf("interchange: schema load failed: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, compiledSchemaErr
}

// Validate checks a bundle's envelope shape against envelopeSchema.
func Validate(b *Bundle) error {
	schema, err := compile()
	if err != nil {
		return err
	}
	// jsonschema validates against decoded-JSON values (map[string]any /
	// []any / json.Number), so round-trip through the same encoding the
	// bundle is ultimately emitted with rather than validating Go structs
	// directly.
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("interchange: marshal for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("interchange: unmarshal for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("interchange: bundle failed schema validation: %w", err)
	}
	return nil
}
