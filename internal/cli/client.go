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

	"github.com/jeremyhahn/go-passkey-idp/pkg/oidc"
)

var clientsFileFlag string

// clientCmd groups OIDC client administration commands
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage OIDC client registrations",
	Long:  `Inspect and validate the OIDC client registrations file.`,
}

// clientListCmd lists the registered clients
var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered OIDC clients",
	Run: func(cmd *cobra.Command, args []string) {
		registry, err := loadClientRegistry()
		if err != nil {
			handleError(err)
		}

		clients, err := registry.List()
		if err != nil {
			handleError(err)
		}

		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		if err := printer.PrintClientList(clients); err != nil {
			handleError(err)
		}
	},
}

// clientValidateCmd validates the clients file
var clientValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the OIDC clients file",
	Run: func(cmd *cobra.Command, args []string) {
		registry, err := loadClientRegistry()
		if err != nil {
			handleError(err)
		}

		clients, err := registry.List()
		if err != nil {
			handleError(err)
		}

		fmt.Printf("Clients file is valid (%d clients)\n", len(clients))
	},
}

// loadClientRegistry resolves the clients file from the flag or the
// server configuration and loads it.
func loadClientRegistry() (*oidc.MemoryRegistry, error) {
	path := clientsFileFlag
	if path == "" {
		cfg, err := getConfig().LoadServerConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.OIDC.ClientsFile
	}
	if path == "" {
		return nil, fmt.Errorf("no clients file configured; use --clients-file or set oidc.clients_file")
	}

	printVerbose("Loading clients from %s", path)
	return oidc.LoadClients(path)
}

func init() {
	clientCmd.PersistentFlags().StringVar(&clientsFileFlag, "clients-file", "",
		"path to the clients file (default: oidc.clients_file from the server config)")
	clientCmd.AddCommand(clientListCmd)
	clientCmd.AddCommand(clientValidateCmd)
}
