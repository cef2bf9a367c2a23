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

// Package identity holds the durable user and credential models together
// with typed repository interfaces over the storage layer. The protocol
// engines only ever see these types; raw storage records never leak out.
package identity

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// User is an account known to the identity provider. Users are created
// exactly once, when a WebAuthn registration ceremony completes; the first
// user ever registered becomes the administrator.
type User struct {
	// ID is the opaque stable identifier (UUID).
	ID string `json:"id"`

	// Username is the unique login name, 3-50 characters.
	Username string `json:"username"`

	// IsAdmin is true only for the first-ever registered user.
	IsAdmin bool `json:"is_admin"`

	// CreatedAt is when registration completed.
	CreatedAt time.Time `json:"created_at"`
}

// Credential is a WebAuthn public-key credential owned by a user. A user
// may own several (multi-device); each carries its own signature counter.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// UserID is the owning user's ID.
	UserID string `json:"user_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used.
	AttestationType string `json:"attestation_type"`

	// Transport lists the transports supported by the authenticator.
	Transport []protocol.AuthenticatorTransport `json:"transport,omitempty"`

	// Flags contains authenticator capability flags.
	Flags CredentialFlags `json:"flags"`

	// SignCount is the signature counter for clone detection. Starts at
	// the authenticator's initial value and only moves forward.
	SignCount uint32 `json:"sign_count"`

	// CloneWarning indicates a potential cloned authenticator.
	CloneWarning bool `json:"clone_warning"`

	// AAGUID is the authenticator's model identifier.
	AAGUID []byte `json:"aaguid,omitempty"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	UserPresent    bool `json:"user_present"`
	UserVerified   bool `json:"user_verified"`
	BackupEligible bool `json:"backup_eligible"`
	BackupState    bool `json:"backup_state"`
}

// ToWebAuthn converts a Credential to the go-webauthn library's type.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transport,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.AAGUID,
			SignCount:    c.SignCount,
			CloneWarning: c.CloneWarning,
		},
	}
}

// FromWebAuthnCredential creates a Credential from the go-webauthn type.
func FromWebAuthnCredential(userID string, wc *webauthn.Credential) *Credential {
	return &Credential{
		ID:              wc.ID,
		UserID:          userID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transport:       wc.Transport,
		Flags: CredentialFlags{
			UserPresent:    wc.Flags.UserPresent,
			UserVerified:   wc.Flags.UserVerified,
			BackupEligible: wc.Flags.BackupEligible,
			BackupState:    wc.Flags.BackupState,
		},
		SignCount:    wc.Authenticator.SignCount,
		CloneWarning: wc.Authenticator.CloneWarning,
		AAGUID:       wc.Authenticator.AAGUID,
		CreatedAt:    time.Now().UTC(),
	}
}
