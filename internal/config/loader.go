// Package config loads daemon configuration from a file (TOML, YAML, or
// JSON by extension) and applies GENAID_* environment overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// BackendConfig describes one kind's runtime endpoint.
type BackendConfig struct {
	BaseURL      string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey       string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Model        string `json:"model" yaml:"model" toml:"model"`
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt"`
}

// OptionsConfig seeds the default generation options.
type OptionsConfig struct {
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK        int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
}

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by defaults in main.
type Config struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr" env:"GENAID_ADDR"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level" env:"GENAID_LOG_LEVEL"`

	// Backends maps kind name -> endpoint. Kinds without an entry report
	// no-backend.
	Backends map[string]BackendConfig `json:"backends" yaml:"backends" toml:"backends"`

	Defaults OptionsConfig `json:"defaults" yaml:"defaults" toml:"defaults"`

	MaxQueueDepth  int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth" env:"GENAID_MAX_QUEUE_DEPTH"`
	MaxWaitSeconds int `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds" env:"GENAID_MAX_WAIT_SECONDS"`

	RequestTimeoutSeconds int `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds" env:"GENAID_REQUEST_TIMEOUT_SECONDS"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled" env:"GENAID_CORS_ENABLED"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins" env:"GENAID_CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads a configuration file based on its extension and applies
// environment overrides. Supports: .yaml/.yml, .json, .toml. An empty path
// yields a config built from environment and defaults alone.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		path, err := expandHome(path)
		if err != nil {
			return cfg, err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, err
			}
		case ".json":
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, err
			}
		case ".toml":
			if err := toml.Unmarshal(b, &cfg); err != nil {
				return cfg, err
			}
		default:
			return cfg, fmt.Errorf("unsupported config extension: %s", ext)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	return cfg, nil
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
