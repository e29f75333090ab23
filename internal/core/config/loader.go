package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Retention.Events == 0 {
		cfg.Retention.Events = 7 * 24 * time.Hour
	}
	if cfg.Retention.Attempts == 0 {
		cfg.Retention.Attempts = 30 * 24 * time.Hour
	}
	if cfg.Monitor.Tick == 0 {
		cfg.Monitor.Tick = 30 * time.Second
	}

	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if svc.Name == "" {
			return nil, fmt.Errorf("service at index %d has no name", i)
		}
		if svc.Health.Interval == 0 {
			svc.Health.Interval = 60 * time.Second
		}
		if svc.Health.Timeout == 0 {
			svc.Health.Timeout = 10 * time.Second
		}
	}

	return &cfg, nil
}
