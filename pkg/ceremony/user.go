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

package ceremony

import (
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-passkey-idp/pkg/identity"
)

// relyingUser adapts our identity model to the go-webauthn User interface.
// The WebAuthn user handle is the UTF-8 bytes of the user ID (a UUID),
// which stays well under the 64 byte protocol limit.
type relyingUser struct {
	id          string
	username    string
	credentials []webauthn.Credential
}

func newRelyingUser(id, username string, creds []*identity.Credential) *relyingUser {
	u := &relyingUser{id: id, username: username}
	u.credentials = make([]webauthn.Credential, len(creds))
	for i, c := range creds {
		u.credentials[i] = c.ToWebAuthn()
	}
	return u
}

// WebAuthnID returns the user handle.
func (u *relyingUser) WebAuthnID() []byte {
	return []byte(u.id)
}

// WebAuthnName returns the login name.
func (u *relyingUser) WebAuthnName() string {
	return u.username
}

// WebAuthnDisplayName returns the display name shown by authenticators.
func (u *relyingUser) WebAuthnDisplayName() string {
	return u.username
}

// WebAuthnCredentials returns the user's registered credentials.
func (u *relyingUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}
