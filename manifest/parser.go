package manifest

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// JSONParser implements Parser for JSON.
type JSONParser struct{}

// NewJSONParser creates a new JSONParser.
func NewJSONParser() Parser {
	return &JSONParser{}
}

// Parse unmarshals JSON bytes into a Metadata struct.
func (p *JSONParser) Parse(data []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// YAMLParser implements Parser for YAML.
type YAMLParser struct{}

// NewYAMLParser creates a new YAMLParser.
func NewYAMLParser() Parser {
	return &YAMLParser{}
}

// Parse unmarshals YAML bytes into a Metadata struct.
func (p *YAMLParser) Parse(data []byte) (*Metadata, error) {
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
