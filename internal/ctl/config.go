package ctl

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config holds ledgerctl defaults, read from a small YAML file.
type Config struct {
	DBPath string `yaml:"db_path"`
	Engine string `yaml:"engine"`
	Format string `yaml:"format"` // "table" or "json"
	// Names labels author ids in reports.
	Names map[string]string `yaml:"names"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
