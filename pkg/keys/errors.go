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

package keys

import "errors"

var (
	// ErrInvalidToken is returned when a token fails signature or claim
	// validation. Callers must not distinguish the failure reason.
	ErrInvalidToken = errors.New("invalid token")

	// ErrKeyNotFound is returned when no signing key pair has been
	// provisioned yet.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrInvalidKeyMaterial is returned when persisted key material cannot
	// be decoded.
	ErrInvalidKeyMaterial = errors.New("invalid key material")
)
