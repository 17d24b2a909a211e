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

	if cfg.Fetch.Workers == 0 {
		cfg.Fetch.Workers = 4
	}
	if cfg.Fetch.MaxAttempts == 0 {
		cfg.Fetch.MaxAttempts = 3
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = Duration(30 * time.Second)
	}
	if cfg.Fetch.BaseDelay == 0 {
		cfg.Fetch.BaseDelay = Duration(1 * time.Second)
	}
	if cfg.Fetch.PauseDuration == 0 {
		cfg.Fetch.PauseDuration = Duration(5 * time.Minute)
	}

	if cfg.RateLimit.BaseRate == 0 {
		cfg.RateLimit.BaseRate = 1.0
	}
	if cfg.RateLimit.MinRate == 0 {
		cfg.RateLimit.MinRate = 0.1
	}
	if cfg.RateLimit.MaxRate == 0 {
		cfg.RateLimit.MaxRate = 10.0
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.SuccessThreshold == 0 {
		cfg.Breaker.SuccessThreshold = 2
	}
	if cfg.Breaker.OpenTimeout == 0 {
		cfg.Breaker.OpenTimeout = Duration(60 * time.Second)
	}

	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = "file"
	}
	if cfg.Checkpoint.Dir == "" {
		cfg.Checkpoint.Dir = "checkpoints"
	}

	for i := range cfg.Sources {
		if cfg.Sources[i].Pages == 0 {
			cfg.Sources[i].Pages = 1
		}
	}

	return &cfg, nil
}
