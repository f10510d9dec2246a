// Package config loads the admission limiter configuration.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML file, a .env file in the working directory, and RATELIMIT_* environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gabisonia/admission-limiter/strategies"
)

type Config struct {
	Server  ServerConfig       `yaml:"server"`
	Limiter strategies.Options `yaml:"limiter"`
	Client  ClientConfig       `yaml:"client"`
	Log     LogConfig          `yaml:"log"`
	Metrics MetricsConfig      `yaml:"metrics"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ClientConfig controls how the client identifier is derived from a request.
type ClientConfig struct {
	// TrustForwardedFor uses the first X-Forwarded-For entry when present.
	// Enable it only behind a proxy that overwrites the header: otherwise any
	// client can choose its own key and every forged value adds tracked state.
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Defaults returns a configuration limiting each client to 5 requests per minute.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            "3000",
			ShutdownTimeout: 10 * time.Second,
		},
		Limiter: strategies.Options{
			Algorithm:      strategies.SlidingWindowCounter,
			MaxRequests:    5,
			Window:         time.Minute,
			MaxTokens:      5,
			RefillInterval: 12 * time.Second,
			Capacity:       5,
			LeakInterval:   12 * time.Second,
			Rate:           5.0 / 60.0,
			Burst:          1,
		},
		Client: ClientConfig{
			TrustForwardedFor: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "ratelimit",
		},
	}
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Server.Port) == "" {
		return fmt.Errorf("server.port is required")
	}
	if cfg.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative, got %s", cfg.Server.ShutdownTimeout)
	}

	if err := cfg.Limiter.Validate(); err != nil {
		return fmt.Errorf("limiter: %w", err)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", cfg.Metrics.Path)
	}

	return nil
}
