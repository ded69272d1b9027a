package stormconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a YAML settings file into target.
func LoadYAML(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("stormconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("stormconfig: unmarshal yaml: %w", err)
	}
	return nil
}

// SaveYAML writes config to path as YAML, restricted to owner-only
// permissions since settings carry DSNs and TLS key paths.
func SaveYAML(path string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("stormconfig: marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("stormconfig: write %s: %w", path, err)
	}
	return nil
}
