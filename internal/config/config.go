// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey-idp.
//
// go-passkey-idp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-passkey-idp/pkg/ceremony"
)

// Config represents the complete identity provider configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Issuer    string          `yaml:"issuer"`
	Logging   LoggingConfig   `yaml:"logging"`
	TLS       TLSConfig       `yaml:"tls"`
	WebAuthn  ceremony.Config `yaml:"webauthn"`
	Session   SessionConfig   `yaml:"session"`
	OIDC      OIDCConfig      `yaml:"oidc"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Health    HealthConfig    `yaml:"health"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TLSConfig controls TLS/SSL settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SessionConfig controls browser session lifetime
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// OIDCConfig controls the OpenID Connect surface
type OIDCConfig struct {
	ClientsFile string        `yaml:"clients_file"`
	LoginPath   string        `yaml:"login_path"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

// RateLimitConfig controls rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig controls health check endpoints
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StorageConfig controls the storage backend for users, credentials,
// sessions, challenges and codes
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, file
	Path    string `yaml:"path"`    // required for the file backend
}

// DefaultConfig returns a configuration with sensible defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Issuer: "http://localhost:8080",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		OIDC: OIDCConfig{
			LoginPath: "/login",
			TokenTTL:  time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 300,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: true,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
	}
	cfg.WebAuthn.SetDefaults()
	return cfg
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// Read the config file
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so partial config files work
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Server settings
	if host := os.Getenv("IDP_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("IDP_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid IDP_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid IDP_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	// Issuer
	if issuer := os.Getenv("IDP_ISSUER"); issuer != "" {
		cfg.Issuer = issuer
	}

	// Logging
	if level := os.Getenv("IDP_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("IDP_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Storage
	if backend := os.Getenv("IDP_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dataDir := os.Getenv("IDP_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}

	// WebAuthn relying party settings
	if rpID := os.Getenv("IDP_RP_ID"); rpID != "" {
		cfg.WebAuthn.RPID = rpID
	}
	if origins := os.Getenv("IDP_RP_ORIGINS"); origins != "" {
		cfg.WebAuthn.RPOrigins = strings.Split(origins, ",")
	}

	// OIDC settings
	if clientsFile := os.Getenv("IDP_CLIENTS_FILE"); clientsFile != "" {
		cfg.OIDC.ClientsFile = clientsFile
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server port
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate issuer
	if c.Issuer == "" {
		return fmt.Errorf("issuer must be specified")
	}
	if !strings.HasPrefix(c.Issuer, "http://") && !strings.HasPrefix(c.Issuer, "https://") {
		return fmt.Errorf("issuer must be an absolute http(s) URL: %s", c.Issuer)
	}
	if strings.HasSuffix(c.Issuer, "/") {
		return fmt.Errorf("issuer must not end with a trailing slash: %s", c.Issuer)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, error, or fatal)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	// Validate TLS settings
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	// Validate WebAuthn relying party settings
	if err := c.WebAuthn.Validate(); err != nil {
		return fmt.Errorf("invalid webauthn configuration: %w", err)
	}

	// Validate session TTL
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive: %s", c.Session.TTL)
	}

	// Validate OIDC settings
	if c.OIDC.TokenTTL <= 0 {
		return fmt.Errorf("oidc token_ttl must be positive: %s", c.OIDC.TokenTTL)
	}
	if c.OIDC.LoginPath == "" || !strings.HasPrefix(c.OIDC.LoginPath, "/") {
		return fmt.Errorf("oidc login_path must start with /: %s", c.OIDC.LoginPath)
	}

	// Validate storage
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the file backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or file)", c.Storage.Backend)
	}

	return nil
}

// ListenAddr returns the host:port address the server should bind to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
