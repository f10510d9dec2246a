package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gabisonia/admission-limiter/strategies"
)

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty), a .env file if present, and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	// A missing .env file is not an error
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies RATELIMIT_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if val := getEnv("RATELIMIT_SERVER_PORT"); val != "" {
		cfg.Server.Port = val
	}
	if val := getEnv("RATELIMIT_ALGORITHM"); val != "" {
		cfg.Limiter.Algorithm = strategies.Algorithm(strings.ToLower(val))
	}
	if val := getEnv("RATELIMIT_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := getEnv("RATELIMIT_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}

	ints := map[string]*int{
		"RATELIMIT_MAX_REQUESTS": &cfg.Limiter.MaxRequests,
		"RATELIMIT_CAPACITY":     &cfg.Limiter.Capacity,
		"RATELIMIT_BURST":        &cfg.Limiter.Burst,
	}
	for key, dst := range ints {
		if val := getEnv(key); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"RATELIMIT_MAX_TOKENS": &cfg.Limiter.MaxTokens,
		"RATELIMIT_RATE":       &cfg.Limiter.Rate,
	}
	for key, dst := range floats {
		if val := getEnv(key); val != "" {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = f
		}
	}

	durations := map[string]*time.Duration{
		"RATELIMIT_WINDOW":           &cfg.Limiter.Window,
		"RATELIMIT_REFILL_INTERVAL":  &cfg.Limiter.RefillInterval,
		"RATELIMIT_LEAK_INTERVAL":    &cfg.Limiter.LeakInterval,
		"RATELIMIT_SHUTDOWN_TIMEOUT": &cfg.Server.ShutdownTimeout,
	}
	for key, dst := range durations {
		if val := getEnv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"RATELIMIT_TRUST_FORWARDED_FOR": &cfg.Client.TrustForwardedFor,
		"RATELIMIT_METRICS_ENABLED":     &cfg.Metrics.Enabled,
	}
	for key, dst := range bools {
		if val := getEnv(key); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
	}

	return nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
