// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrGatewayAPIKeyRequired is returned when GATEWAY_API_KEY is not set.
	ErrGatewayAPIKeyRequired = errors.New("config: GATEWAY_API_KEY is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Generation gateway settings (LLM, image, speech and research vendors)
	GatewayBaseURL string `env:"GATEWAY_BASE_URL, default=https://api.storyforge.dev/v1" json:"gateway_base_url"`
	GatewayAPIKey  string `env:"GATEWAY_API_KEY, required" json:"-"` // Masked in JSON

	// Storage settings
	DataDir string `env:"DATA_DIR, default=/tmp/storyforge" json:"data_dir"`

	// Format catalog settings
	FormatCatalogPath string `env:"FORMAT_CATALOG_PATH" json:"format_catalog_path,omitempty"`

	// Checkpoint settings
	CheckpointTimeout time.Duration `env:"CHECKPOINT_TIMEOUT, default=5m" json:"checkpoint_timeout"`

	// Render queue settings
	MaxConcurrentJobs int           `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs"`
	JobMaxRetries     int           `env:"JOB_MAX_RETRIES, default=2" json:"job_max_retries"`
	JobStallTimeout   time.Duration `env:"JOB_STALL_TIMEOUT, default=2m" json:"job_stall_timeout"`
	JobMaxDuration    time.Duration `env:"JOB_MAX_DURATION, default=30m" json:"job_max_duration"`
	JobRetention      time.Duration `env:"JOB_RETENTION, default=30m" json:"job_retention"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "GATEWAY_API_KEY") {
			return nil, ErrGatewayAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.GatewayAPIKey == "" {
		return ErrGatewayAPIKeyRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, GatewayBaseURL: %s, DataDir: %s, MaxConcurrentJobs: %d, JobMaxRetries: %d, JobStallTimeout: %s, JobMaxDuration: %s, JobRetention: %s, CheckpointTimeout: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.GatewayBaseURL,
		c.DataDir,
		c.MaxConcurrentJobs,
		c.JobMaxRetries,
		c.JobStallTimeout,
		c.JobMaxDuration,
		c.JobRetention,
		c.CheckpointTimeout,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
