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
)

var (
	// Global configuration
	globalConfig *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "idp-admin",
	Short: "go-passkey-idp admin - Passwordless identity provider administration",
	Long: `idp-admin provides a command-line interface for administering the
passwordless identity provider: inspecting OIDC client registrations,
pre-generating the token signing key and checking the configuration.

The server itself is started with the idp-server binary.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Initialize global config
	globalConfig = NewConfig()

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&globalConfig.ConfigFile, "config", "/etc/idp/config.yaml",
		"path to the server configuration file")
	rootCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat, "output", "o", "text",
		"output format (text, json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalConfig.Verbose, "verbose", "v", false,
		"verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(configCmd)
}

// getConfig returns the global configuration
func getConfig() *Config {
	return globalConfig
}

// handleError prints an error and exits with code 1
func handleError(err error) {
	printer := NewPrinter(globalConfig.OutputFormat, os.Stderr)
	_ = printer.PrintError(err) // Error printing to stderr is best-effort
	os.Exit(1)
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if globalConfig.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
