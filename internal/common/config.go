// Package common provides shared utilities for FundKeeper
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for FundKeeper
type Config struct {
	Environment string          `toml:"environment"`
	Users       []string        `toml:"users"` // users refreshed by the background scheduler
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Clients     ClientsConfig   `toml:"clients"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds file storage configuration
type StorageConfig struct {
	Path     string `toml:"path"`
	Versions int    `toml:"versions"` // rotated copies kept for ledger documents
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Eastmoney EastmoneyConfig `toml:"eastmoney"`
}

// EastmoneyConfig holds Eastmoney fund API configuration
type EastmoneyConfig struct {
	BaseURL        string `toml:"base_url"`
	HistoryBaseURL string `toml:"history_base_url"`
	RateLimit      int    `toml:"rate_limit"`
	Timeout        string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EastmoneyConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// SchedulerConfig holds background snapshot refresh configuration
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"`
}

// GetInterval parses and returns the refresh interval
func (c *SchedulerConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `toml:"level"`
	FilePath string `toml:"file_path"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Path:     "data",
			Versions: 3,
		},
		Clients: ClientsConfig{
			Eastmoney: EastmoneyConfig{
				BaseURL:        "http://fundgz.1234567.com.cn",
				HistoryBaseURL: "http://api.fund.eastmoney.com",
				RateLimit:      10,
				Timeout:        "10s",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Interval: "5m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FUNDKEEPER_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FUNDKEEPER_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FUNDKEEPER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FUNDKEEPER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("FUNDKEEPER_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}

	if users := os.Getenv("FUNDKEEPER_USERS"); users != "" {
		var parsed []string
		for _, u := range strings.Split(users, ",") {
			if u = strings.TrimSpace(u); u != "" {
				parsed = append(parsed, u)
			}
		}
		if len(parsed) > 0 {
			config.Users = parsed
		}
	}

	if interval := os.Getenv("FUNDKEEPER_REFRESH_INTERVAL"); interval != "" {
		config.Scheduler.Interval = interval
		config.Scheduler.Enabled = true
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
