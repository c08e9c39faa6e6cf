package config

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	jsvalidate "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
)

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the JSON Schema reflected from the Config struct,
// for editor completion and the schema subcommand.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag:               "yaml",
			RequiredFromJSONSchemaTags: true,
			AllowAdditionalProperties:  true,
			DoNotReference:             true,
		}
		// Durations appear in config files as strings like "30s".
		r.Mapper = func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{OneOf: []*jsonschema.Schema{
					{Type: "string"},
					{Type: "integer"},
				}}
			}
			return nil
		}
		schema := r.Reflect(&Config{})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}

// ValidateRaw checks a raw configuration map against the reflected
// schema, catching wrong value types before decoding.
func ValidateRaw(raw map[string]any) error {
	schemaData, err := JSONSchema()
	if err != nil {
		return err
	}
	compiled, err := jsvalidate.CompileString("config.schema.json", string(schemaData))
	if err != nil {
		return errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigValidation, "compiling config schema", err)
	}

	// Round-trip through JSON so the validator sees canonical types.
	payload, err := json.Marshal(raw)
	if err != nil {
		return errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigParse, "serializing config", err)
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigParse, "serializing config", err)
	}

	if err := compiled.Validate(doc); err != nil {
		return errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigValidation, "config does not match schema", err).
			WithTip("run the schema subcommand to print the expected structure")
	}
	return nil
}
