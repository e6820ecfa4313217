// Package config handles loading and parsing of Carton configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for Carton.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Website  WebsiteConfig  `yaml:"website"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Owner is the canonical user reported as bucket and object owner in
	// ListBuckets and ACL responses.
	Owner string `yaml:"owner"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	// Directory is the base directory holding bucket directories. Empty means
	// a fresh temporary directory is created at startup.
	Directory string `yaml:"directory"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn" or "error".
	Level string `yaml:"level"`
	// Format selects the slog handler: "text" or "json".
	Format string `yaml:"format"`
	// Silent discards all log output. Useful when embedding the server in
	// another program's test suite.
	Silent bool `yaml:"silent"`
}

// WebsiteConfig holds static-site mode settings. Static-site behavior is
// enabled per field: an index document enables index fallback, an error
// document enables the custom 404 page, and a routing rule enables redirects
// on GET misses.
type WebsiteConfig struct {
	// IndexDocument is the key served for bucket-root and "directory" GETs.
	IndexDocument string `yaml:"index_document"`
	// ErrorDocument is the key served with status 404 when a GET misses.
	ErrorDocument string `yaml:"error_document"`
	// RoutingRule, when set, issues a redirect on GET miss instead of the
	// index/error document fallback chain.
	RoutingRule *RoutingRule `yaml:"routing_rule"`
}

// RoutingRule describes the redirect issued on a GET miss.
type RoutingRule struct {
	// HostName is the redirect target host. Empty means the request's host.
	HostName string `yaml:"host_name"`
	// Protocol is the redirect scheme, "http" or "https".
	Protocol string `yaml:"protocol"`
	// ReplaceKeyPrefixWith is prepended to the requested key in the
	// redirect Location.
	ReplaceKeyPrefixWith string `yaml:"replace_key_prefix_with"`
	// HTTPRedirectCode is the 3xx status code to respond with.
	HTTPRedirectCode int `yaml:"http_redirect_code"`
}

// ShutdownConfig holds graceful shutdown settings.
type ShutdownConfig struct {
	// TimeoutSeconds bounds how long in-flight requests may run after a
	// shutdown signal before the listener is torn down.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Load reads a YAML configuration file from the given path and returns
// a parsed Config. It applies sensible defaults for unset values.
// If the primary path fails, it falls back to carton.example.yaml
// in the same directory or parent directory.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		// Try fallback paths
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "carton.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "carton.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults for empty fields that YAML didn't set
	applyDefaults(cfg)

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4578
	}
	if cfg.Server.Owner == "" {
		cfg.Server.Owner = "CartonStore"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Shutdown.TimeoutSeconds == 0 {
		cfg.Shutdown.TimeoutSeconds = 10
	}
	if rr := cfg.Website.RoutingRule; rr != nil {
		if rr.Protocol == "" {
			rr.Protocol = "http"
		}
		if rr.HTTPRedirectCode == 0 {
			rr.HTTPRedirectCode = 301
		}
	}
}
