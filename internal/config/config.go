package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoAPIKeys means YT_API_KEYS is unset or contains no usable keys.
// This is fatal at startup.
var ErrNoAPIKeys = errors.New("config: YT_API_KEYS is not set or empty")

// Config carries everything the worker and orchestrator processes need.
type Config struct {
	// APIKeys is the ordered pool of YouTube Data API keys.
	APIKeys []string `yaml:"-"`

	RedisURL            string `yaml:"redis_url"`
	BrokerURL           string `yaml:"broker_url"`
	RedisMaxConnections int    `yaml:"redis_max_connections"`

	// Throttle bounds requests per tenant.
	ThrottleMaxRequests int           `yaml:"throttle_max_requests"`
	ThrottlePeriod      time.Duration `yaml:"throttle_period"`

	// KeyCooldown is how long a quota-exhausted key is withheld.
	KeyCooldown time.Duration `yaml:"key_cooldown"`

	// SoftTimeLimit bounds one job's processing time; expiry marks the job
	// FAILED("TTL exceeded"). HardTimeLimit is enforced by the queue broker.
	SoftTimeLimit time.Duration `yaml:"soft_time_limit"`
	HardTimeLimit time.Duration `yaml:"hard_time_limit"`

	// WorkerConcurrency is the number of concurrent task handlers.
	WorkerConcurrency int `yaml:"worker_concurrency"`

	// APIBaseURL overrides the YouTube Data API endpoint (mock server, tests).
	APIBaseURL string `yaml:"api_base_url"`
}

// Default returns the built-in defaults (no API keys).
func Default() Config {
	return Config{
		RedisURL:            "redis://localhost:6379/0",
		BrokerURL:           "redis://localhost:6379/1",
		RedisMaxConnections: 50,
		ThrottleMaxRequests: 5,
		ThrottlePeriod:      time.Second,
		KeyCooldown:         60 * time.Second,
		SoftTimeLimit:       60 * time.Second,
		HardTimeLimit:       1200 * time.Second,
		WorkerConcurrency:   10,
		APIBaseURL:          "https://www.googleapis.com/youtube/v3",
	}
}

// Load builds the configuration from defaults, an optional YAML file
// (path in YTC_CONFIG_FILE), and environment overrides, in that order.
// It fails with ErrNoAPIKeys when no API key is configured.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("YTC_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	keys, err := ParseAPIKeys(os.Getenv("YT_API_KEYS"))
	if err != nil {
		return Config{}, err
	}
	cfg.APIKeys = keys
	return cfg, nil
}

// ParseAPIKeys splits a comma-separated key list, trimming whitespace and
// dropping empties, preserving order.
func ParseAPIKeys(raw string) ([]string, error) {
	var keys []string
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoAPIKeys
	}
	return keys, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("BROKER_URL"); v != "" {
		cfg.BrokerURL = v
	}
	if v := os.Getenv("REDIS_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RedisMaxConnections = n
		}
	}
	if v := os.Getenv("YTC_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerConcurrency = n
		}
	}
	if v := os.Getenv("YTC_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("YTC_SOFT_TIME_LIMIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SoftTimeLimit = d
		}
	}
	if v := os.Getenv("YTC_KEY_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.KeyCooldown = d
		}
	}
}
