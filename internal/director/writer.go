package director

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteScenario dumps a scenario as YAML, creating the parent directory.
func WriteScenario(scenario *Scenario, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(scenario)
	if err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ReadScenario loads a scenario dump written by WriteScenario.
func ReadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if scenario.Version == "" {
		return nil, fmt.Errorf("scenario %s has no version", path)
	}
	return &scenario, nil
}
