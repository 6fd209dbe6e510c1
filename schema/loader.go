package schema

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// document is the YAML layout of a metadata file.
type document struct {
	Entities []*Entity `yaml:"entities"`
}

// Parse decodes and validates a YAML metadata document.
func Parse(data []byte) (*Registry, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("vlquery/schema: parse: %w", err)
	}
	return New(doc.Entities...)
}

// Load reads and validates the metadata file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	return r, nil
}
