package stormconfig

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadJSON reads a JSON settings file into target.
func LoadJSON(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("stormconfig: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("stormconfig: unmarshal json: %w", err)
	}
	return nil
}

// SaveJSON writes config to path as indented JSON, owner-only permissions.
func SaveJSON(path string, config interface{}) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("stormconfig: marshal json: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("stormconfig: write %s: %w", path, err)
	}
	return nil
}
