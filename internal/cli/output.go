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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jeremyhahn/go-passkey-idp/internal/config"
	"github.com/jeremyhahn/go-passkey-idp/pkg/oidc"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintClientList prints the registered OIDC clients
func (p *Printer) PrintClientList(clients []*oidc.Client) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"clients": clients,
		})
	case OutputFormatTable:
		if len(clients) == 0 {
			fmt.Fprintln(p.writer, "No clients registered")
			return nil
		}
		fmt.Fprintf(p.writer, "%-25s %-25s %s\n", "CLIENT ID", "NAME", "REDIRECT URIS")
		fmt.Fprintln(p.writer, strings.Repeat("-", 80))
		for _, client := range clients {
			fmt.Fprintf(p.writer, "%-25s %-25s %s\n",
				client.ID, client.Name, strings.Join(client.RedirectURIs, ", "))
		}
		return nil
	case OutputFormatText:
		if len(clients) == 0 {
			fmt.Fprintln(p.writer, "No clients registered")
			return nil
		}
		fmt.Fprintln(p.writer, "Registered clients:")
		for _, client := range clients {
			fmt.Fprintf(p.writer, "  - %s (%s)\n", client.ID, client.Name)
			for _, uri := range client.RedirectURIs {
				fmt.Fprintf(p.writer, "      %s\n", uri)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintKeyInfo prints signing key information
func (p *Printer) PrintKeyInfo(kid, issuer string, created bool) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"kid":     kid,
			"issuer":  issuer,
			"created": created,
		})
	case OutputFormatTable, OutputFormatText:
		if created {
			fmt.Fprintln(p.writer, "Generated new signing key pair")
		} else {
			fmt.Fprintln(p.writer, "Signing key pair already exists")
		}
		fmt.Fprintf(p.writer, "Key ID: %s\n", kid)
		fmt.Fprintf(p.writer, "Issuer: %s\n", issuer)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintConfigSummary prints a validated configuration summary
func (p *Printer) PrintConfigSummary(cfg *config.Config) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"valid":           true,
			"issuer":          cfg.Issuer,
			"listen_addr":     cfg.ListenAddr(),
			"storage_backend": cfg.Storage.Backend,
			"rp_id":           cfg.WebAuthn.RPID,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, "Configuration is valid")
		fmt.Fprintf(p.writer, "Issuer:          %s\n", cfg.Issuer)
		fmt.Fprintf(p.writer, "Listen address:  %s\n", cfg.ListenAddr())
		fmt.Fprintf(p.writer, "Storage backend: %s\n", cfg.Storage.Backend)
		fmt.Fprintf(p.writer, "Relying party:   %s\n", cfg.WebAuthn.RPID)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"error": err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

// printJSON writes indented JSON output
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
