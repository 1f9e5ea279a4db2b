package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	coreprovider "github.com/artpar/stackdeploy/internal/core/provider"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	AWS     AWSConfig     `mapstructure:"aws"`
	Deploy  DeployConfig  `mapstructure:"deploy"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	History HistoryConfig `mapstructure:"history"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AWSConfig selects the credentials. A profile and static keys are mutually
// exclusive; with neither, the SDK default chain applies.
type AWSConfig struct {
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// Credentials converts the config to the provider credential type.
func (c AWSConfig) Credentials() coreprovider.AWSCredentials {
	return coreprovider.AWSCredentials{
		Profile:         c.Profile,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
	}
}

// DeployConfig holds deploy phase tuning.
type DeployConfig struct {
	UploadConcurrency int `mapstructure:"upload_concurrency"`

	// KeepPrevious is the number of artifact directories kept besides the
	// current one.
	KeepPrevious int `mapstructure:"keep_previous"`
}

// MonitorConfig holds stack polling configuration.
type MonitorConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// HistoryConfig holds run history configuration. An empty DSN disables it.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MetricsConfig holds metrics configuration. An empty URL disables push.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("deploy.upload_concurrency", 4)
	v.SetDefault("deploy.keep_previous", 3)
	v.SetDefault("monitor.interval", "5s")
	v.SetDefault("monitor.max_interval", "30s")
	v.SetDefault("monitor.timeout", "30m")
	v.SetDefault("history.dsn", "./.stackdeploy/history.db")
	v.SetDefault("metrics.pushgateway_url", "")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("STACKDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Deploy.KeepPrevious < 0 {
		return nil, fmt.Errorf("deploy.keep_previous must not be negative, got %d", cfg.Deploy.KeepPrevious)
	}
	if err := coreprovider.ValidateAWSCredentials(cfg.AWS.Credentials()); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Commands pass stderr so stdout carries only command output.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
