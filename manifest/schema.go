package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaResource = "metadata.schema.json"

var (
	schemaOnce     sync.Once
	schemaJSON     string
	compiledSchema *validator.Schema
	schemaErr      error
)

func buildSchema() {
	reflector := new(jsonschema.Reflector)
	reflector.ExpandedStruct = true
	reflector.AllowAdditionalProperties = true

	s := reflector.Reflect(&Metadata{})
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		schemaErr = fmt.Errorf("failed to marshal generated schema: %w", err)
		return
	}
	schemaJSON = string(b)

	compiler := validator.NewCompiler()
	compiler.Draft = validator.Draft2020
	if err := compiler.AddResource(schemaResource, strings.NewReader(schemaJSON)); err != nil {
		schemaErr = fmt.Errorf("failed to load metadata schema: %w", err)
		return
	}
	compiledSchema, schemaErr = compiler.Compile(schemaResource)
}

// Schema returns the JSON schema manifests are validated against.
func Schema() (string, error) {
	schemaOnce.Do(buildSchema)
	return schemaJSON, schemaErr
}

// Validate checks meta against the metadata schema.
func Validate(meta *Metadata) error {
	schemaOnce.Do(buildSchema)
	if schemaErr != nil {
		return schemaErr
	}

	// Round-trip through JSON so the validator sees plain JSON values.
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("invalid metadata: %w", err)
	}
	return nil
}
