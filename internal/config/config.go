package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Providers    []ProviderConfig   `json:"providers"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Database     DatabaseConfig     `json:"database"`
	ImageGen     ImageGenConfig     `json:"imagegen"`
	PromptBudget int                `json:"prompt_budget"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	TimeoutS int    `json:"timeout_seconds,omitempty"`
}

// Timeout converts the configured seconds to a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutS) * time.Second
}

type OrchestratorConfig struct {
	Environment      string `json:"environment"`
	PreferredService string `json:"preferred_service"`
	AllowFallback    bool   `json:"allow_fallback"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type ImageGenConfig struct {
	Endpoint      string `json:"endpoint"`
	Token         string `json:"token"`
	PollIntervalS int    `json:"poll_interval_seconds,omitempty"`
}

// PollInterval converts the configured seconds to a duration.
func (i ImageGenConfig) PollInterval() time.Duration {
	return time.Duration(i.PollIntervalS) * time.Second
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
