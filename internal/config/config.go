// Package config loads the service configuration from an optional YAML
// file with environment variable overrides. A .env file in the working
// directory is honored when present.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// The supported key-value store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Store configures the key-value store backend.
type Store struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the SQLite database file. Required for the sqlite backend.
	Path string `yaml:"path"`
}

// Config is the full service configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	Store    Store  `yaml:"store"`
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply. Environment variables (PORT,
// LOG_LEVEL, STORE_BACKEND, STORE_PATH) override the file.
func Load(path string) (*Config, error) {
	// A missing .env is fine; env vars may come from the environment itself.
	_ = godotenv.Load()

	cfg := &Config{
		Port:     "8080",
		LogLevel: "info",
		Store:    Store{Backend: BackendMemory},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if cfg.Store.Path == "" {
			return nil, fmt.Errorf("store backend %q requires a path", cfg.Store.Backend)
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return cfg, nil
}
