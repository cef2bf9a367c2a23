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
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-passkey-idp/pkg/keys"
)

// keygenCmd pre-generates the RS256 token signing key pair
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the token signing key pair",
	Long: `Generate the RS256 signing key pair in the configured storage backend
and print its key ID. Generation is idempotent; if a key pair already
exists it is left untouched and its key ID is printed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := getConfig().LoadServerConfig()
		if err != nil {
			handleError(err)
		}

		backend, err := getConfig().CreateBackend(cfg)
		if err != nil {
			handleError(err)
		}
		defer func() { _ = backend.Close() }()

		existed, err := backend.Exists("signing:keypair")
		if err != nil {
			handleError(err)
		}

		keySvc, err := keys.NewService(keys.ServiceParams{
			Backend: backend,
			Issuer:  cfg.Issuer,
		})
		if err != nil {
			handleError(err)
		}
		if err := keySvc.EnsureKeyPair(); err != nil {
			handleError(err)
		}

		kid, err := keySvc.KID()
		if err != nil {
			handleError(err)
		}

		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		if err := printer.PrintKeyInfo(kid, cfg.Issuer, !existed); err != nil {
			handleError(err)
		}
	},
}
