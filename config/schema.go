package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

//go:embed schema.json
var packagingSchema []byte

const packagingSchemaURL = "packaging.schema.json"

// validateAgainstSchema validates YAML or JSON data against a JSON schema.
func validateAgainstSchema(name string, schema, data []byte) error {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("loading schema %s: %w", name, err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return fmt.Errorf("compiling schema %s: %w", name, err)
	}

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting to JSON: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(jsonData, &v); err != nil {
		return fmt.Errorf("decoding JSON: %w", err)
	}
	// An empty document is an empty configuration.
	if v == nil {
		v = map[string]interface{}{}
	}
	if err := sch.Validate(v); err != nil {
		return err
	}
	return nil
}
