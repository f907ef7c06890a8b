package parse

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dshills/flowmark/flow"
)

// BuildConfig merges declared config defaults with caller overrides,
// enforces required fields, and validates each value against the field's
// JSON-schema fragment when one is declared.
func BuildConfig(meta flow.Metadata, overrides map[string]any) (map[string]any, error) {
	cfg := map[string]any{}
	for _, field := range meta.Config {
		if field.Default != nil {
			cfg[field.Name] = field.Default
		}
	}
	for k, v := range overrides {
		cfg[k] = v
	}

	for _, field := range meta.Config {
		v, present := cfg[field.Name]
		if !present {
			if field.Required {
				return nil, fmt.Errorf("required config field %q not provided", field.Name)
			}
			continue
		}
		if err := validateField(field, v); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// validateField checks a config value against its declared schema. A
// field with a bare type declaration gets a minimal type-only schema.
func validateField(field flow.ConfigField, value any) error {
	schema := field.Schema
	if schema == nil {
		if field.Type == "" {
			return nil
		}
		schema = map[string]any{"type": field.Type}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(value),
	)
	if err != nil {
		return fmt.Errorf("config field %q: schema validation failed: %w", field.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.Description())
		}
		return fmt.Errorf("config field %q is invalid: %v", field.Name, msgs)
	}
	return nil
}

// CheckSecrets verifies every declared secret has a value.
func CheckSecrets(meta flow.Metadata, secrets map[string]string) error {
	for _, name := range meta.Secrets {
		if _, ok := secrets[name]; !ok {
			return fmt.Errorf("declared secret %q not provided", name)
		}
	}
	return nil
}
