package strategy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// LoadYAML parses a strategy schema from YAML, matching the teacher's
// convention of defining strategies as YAML documents loaded through
// gopkg.in/yaml.v3 rather than hand-written JSON.
func LoadYAML(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("strategy: parse yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// ExportYAML serializes a strategy schema back to YAML, e.g. for the
// registry clone/export surface.
func ExportYAML(s Schema) ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("strategy: marshal yaml: %w", err)
	}
	return data, nil
}
