package logger

import (
	"os"
	"strings"
)

// Config defines logging configuration.
type Config struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // json or console
	Development bool   `yaml:"development"`
}

// DefaultConfig returns production defaults: info-level JSON output.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
	}
}

// DevelopmentConfig returns a human-friendly console configuration.
func DevelopmentConfig() Config {
	return Config{
		Level:       "debug",
		Format:      "console",
		Development: true,
	}
}

// ConfigFromEnv builds a Config from YTC_LOG_* environment variables.
// Anything other than YTC_ENV=production selects development defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if strings.ToLower(os.Getenv("YTC_ENV")) != "production" {
		cfg = DevelopmentConfig()
	}
	if level := os.Getenv("YTC_LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	if format := os.Getenv("YTC_LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	return cfg
}
