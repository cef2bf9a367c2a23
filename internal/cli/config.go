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

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-passkey-idp/internal/config"
	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the server configuration file
	ConfigFile string

	// OutputFormat controls output formatting (json, text, table)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		ConfigFile:   "/etc/idp/config.yaml",
		OutputFormat: "text",
		Verbose:      false,
	}
}

// LoadServerConfig loads and validates the server configuration file.
func (c *Config) LoadServerConfig() (*config.Config, error) {
	cfg, err := config.Load(c.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	return cfg, nil
}

// CreateBackend opens the storage backend named in the server
// configuration.
func (c *Config) CreateBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemory(), nil
	case "file":
		backend, err := storage.NewFile(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file backend: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// configCmd validates the server configuration file
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate the server configuration",
	Long: `Load the server configuration file, apply environment overrides and
report whether the result is valid.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := getConfig().LoadServerConfig()
		if err != nil {
			handleError(err)
		}

		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		if err := printer.PrintConfigSummary(cfg); err != nil {
			handleError(err)
		}
	},
}
