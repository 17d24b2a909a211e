package config

import (
	"fmt"
	"time"

	redisclient "github.com/sportsight/scout/internal/infra/redis"
	"github.com/sportsight/scout/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Fetch      FetchConfig        `yaml:"fetch"`
	RateLimit  RateLimitConfig    `yaml:"rate_limit"`
	Breaker    BreakerConfig      `yaml:"breaker"`
	Proxy      ProxyConfig        `yaml:"proxy"`
	Checkpoint CheckpointConfig   `yaml:"checkpoint"`
	Sources    []SourceConfig     `yaml:"sources"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   postgres.Config    `yaml:"database"`
}

// Duration wraps time.Duration so YAML values like "30s" parse. A bare
// number is taken as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}

	var n int64
	if err := unmarshal(&n); err != nil {
		return err
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// FetchConfig tunes the fetch pipeline.
type FetchConfig struct {
	Workers       int      `yaml:"workers"`
	MaxAttempts   int      `yaml:"max_attempts"`
	Timeout       Duration `yaml:"timeout"`
	UserAgent     string   `yaml:"user_agent"`
	BaseDelay     Duration `yaml:"base_delay"`
	PauseDuration Duration `yaml:"pause_duration"`
}

// RateLimitConfig bounds the per-domain adaptive limiters.
type RateLimitConfig struct {
	BaseRate float64 `yaml:"base_rate"` // requests per second for new domains
	MinRate  float64 `yaml:"min_rate"`
	MaxRate  float64 `yaml:"max_rate"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	SuccessThreshold int      `yaml:"success_threshold"`
	OpenTimeout      Duration `yaml:"open_timeout"`
}

// ProxyConfig holds proxy pool settings.
type ProxyConfig struct {
	URLs                []string `yaml:"urls"`
	Strategy            string   `yaml:"strategy"`
	HealthCheckURL      string   `yaml:"health_check_url"`
	HealthCheckInterval Duration `yaml:"health_check_interval"`
}

// CheckpointConfig selects the progress backend.
type CheckpointConfig struct {
	Backend       string `yaml:"backend"` // file, redis, postgres, memory
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"` // 0 = keep forever
}

// SourceConfig describes one scraping source. URLTemplate carries a single
// integer verb filled with the page number.
type SourceConfig struct {
	Name        string            `yaml:"name"`
	URLTemplate string            `yaml:"url_template"`
	Pages       int               `yaml:"pages"`
	RateLimit   float64           `yaml:"rate_limit"` // req/s override, 0 = global base
	Header      map[string]string `yaml:"header"`
}
