// Package config provides unified configuration for the client.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moduledb/moduledb-go/internal/conn"
)

// Config holds everything needed to dial a database and start the façade.
type Config struct {
	// Host is the server's host:port, without a scheme.
	Host string `json:"host" yaml:"host"`

	// Database is the module database name to connect to.
	Database string `json:"database" yaml:"database"`

	// Token is a pre-issued auth token. Left empty, the client connects
	// anonymously and the server issues one on InitialConnection.
	Token string `json:"token" yaml:"token"`

	// Subscriptions lists the SQL queries subscribed to on connect.
	Subscriptions []string `json:"subscriptions" yaml:"subscriptions"`

	// Compression selects the outbound envelope: none, gzip, or brotli.
	Compression string `json:"compression" yaml:"compression"`

	// TLS controls wss:// vs ws:// when dialing.
	TLS bool `json:"tls" yaml:"tls"`

	// Reconnect configures the backoff schedule used after an unexpected
	// disconnect.
	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`

	// TokenStorePath, if set, points at a local SQLite file used to
	// persist the auth token and per-table bloom filters across
	// restarts. Empty disables persistence.
	TokenStorePath string `json:"token_store_path" yaml:"token_store_path"`
}

// ReconnectConfig controls the reconnect backoff schedule.
type ReconnectConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	BaseBackoff time.Duration `json:"base_backoff" yaml:"base_backoff"`
	MaxBackoff  time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Host:        "localhost:3000",
		Compression: string(conn.CompressionNone),
		TLS:         false,
		Reconnect: ReconnectConfig{
			MaxAttempts: 10,
			BaseBackoff: 500 * time.Millisecond,
			MaxBackoff:  30 * time.Second,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	switch conn.Compression(c.Compression) {
	case conn.CompressionNone, conn.CompressionGzip, conn.CompressionBrotli, "":
		// Valid.
	default:
		return fmt.Errorf("invalid compression: %s (must be none, gzip, or brotli)", c.Compression)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must be >= 0")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overlays cfg with any MODULEDB_-prefixed environment
// variables that are set, leaving unset fields untouched.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MODULEDB_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("MODULEDB_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("MODULEDB_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("MODULEDB_COMPRESSION"); v != "" {
		cfg.Compression = v
	}
	if v := os.Getenv("MODULEDB_TLS"); v != "" {
		cfg.TLS = v == "true" || v == "1"
	}
	if v := os.Getenv("MODULEDB_TOKEN_STORE_PATH"); v != "" {
		cfg.TokenStorePath = v
	}
	if v := os.Getenv("MODULEDB_RECONNECT_MAX_ATTEMPTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Reconnect.MaxAttempts)
	}
	if v := os.Getenv("MODULEDB_RECONNECT_BASE_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reconnect.BaseBackoff = d
		}
	}
	if v := os.Getenv("MODULEDB_RECONNECT_MAX_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reconnect.MaxBackoff = d
		}
	}
}
