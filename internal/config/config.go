// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database. Empty means the in-memory store is used.
	DatabaseURL string `koanf:"database_url"`

	// Redis, used for distributed rate limiting. Empty means the
	// in-memory rate limit store is used.
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication. The previous secret supports zero-downtime
	// key rotation and may be empty.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTSecretPrevious string `koanf:"jwt_secret_previous"`

	// Vote ingest stream (websocket URL consumed by the ingester).
	IngestURL string `koanf:"ingest_url"`

	// OpenTelemetry
	OTLPEndpoint   string `koanf:"otlp_endpoint"`
	TracingEnabled bool   `koanf:"tracing_enabled"`

	// Rate limits, requests per minute per tier
	RateLimitReadPerMin  int `koanf:"rate_limit_read_per_min"`
	RateLimitVotePerMin  int `koanf:"rate_limit_vote_per_min"`
	RateLimitWritePerMin int `koanf:"rate_limit_write_per_min"`

	// FeedHotWindowHours restricts hot feeds to items created within
	// the window. Zero disables the restriction.
	FeedHotWindowHours int `koanf:"feed_hot_window_hours"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret = errors.New("JWT_SECRET is required")
	ErrInvalidPort      = errors.New("PORT must be a valid integer")
	ErrInvalidRateLimit = errors.New("rate limits must be positive integers")
)

// Default values for non-secret configuration.
const (
	DefaultPort                 = 8080
	DefaultEnv                  = "development"
	DefaultRateLimitReadPerMin  = 300
	DefaultRateLimitVotePerMin  = 60
	DefaultRateLimitWritePerMin = 10
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Parse port from env, collecting error if invalid
	// Try BANTER_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"BANTER_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	readLimit, err := getEnvIntOrDefault("RATE_LIMIT_READ_PER_MIN", k.Int("rate_limit_read_per_min"), DefaultRateLimitReadPerMin)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	voteLimit, err := getEnvIntOrDefault("RATE_LIMIT_VOTE_PER_MIN", k.Int("rate_limit_vote_per_min"), DefaultRateLimitVotePerMin)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	writeLimit, err := getEnvIntOrDefault("RATE_LIMIT_WRITE_PER_MIN", k.Int("rate_limit_write_per_min"), DefaultRateLimitWritePerMin)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	hotWindow, err := getEnvIntOrDefault("FEED_HOT_WINDOW_HOURS", k.Int("feed_hot_window_hours"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	// Parse tracing flag, env var takes precedence over file config
	tracingEnabled := k.Bool("tracing_enabled")
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			tracingEnabled = true
		case "false", "0", "no", "off":
			tracingEnabled = false
		}
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                 port,
		Env:                  getEnvOrDefaultMulti([]string{"BANTER_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:          getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:             getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:            getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTSecretPrevious:    getEnvOrKoanf("JWT_SECRET_PREVIOUS", k, "jwt_secret_previous"),
		IngestURL:            getEnvOrKoanf("INGEST_URL", k, "ingest_url"),
		OTLPEndpoint:         getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		TracingEnabled:       tracingEnabled,
		RateLimitReadPerMin:  readLimit,
		RateLimitVotePerMin:  voteLimit,
		RateLimitWritePerMin: writeLimit,
		FeedHotWindowHours:   hotWindow,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.RateLimitReadPerMin <= 0 || c.RateLimitVotePerMin <= 0 || c.RateLimitWritePerMin <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                     fmt.Sprintf("%d", c.Port),
		"env":                      c.Env,
		"database_url":             maskDatabaseURL(c.DatabaseURL),
		"redis_url":                maskDatabaseURL(c.RedisURL),
		"jwt_secret":               maskSecret(c.JWTSecret),
		"jwt_secret_previous":      maskSecret(c.JWTSecretPrevious),
		"ingest_url":               c.IngestURL,
		"otlp_endpoint":            c.OTLPEndpoint,
		"tracing_enabled":          fmt.Sprintf("%t", c.TracingEnabled),
		"rate_limit_read_per_min":  fmt.Sprintf("%d", c.RateLimitReadPerMin),
		"rate_limit_vote_per_min":  fmt.Sprintf("%d", c.RateLimitVotePerMin),
		"rate_limit_write_per_min": fmt.Sprintf("%d", c.RateLimitWritePerMin),
		"feed_hot_window_hours":    fmt.Sprintf("%d", c.FeedHotWindowHours),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
