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

package identity

import "errors"

var (
	// ErrUserNotFound is returned when a user cannot be found.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists is returned when a username is already taken.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialAlreadyExists is returned on duplicate credential registration.
	ErrCredentialAlreadyExists = errors.New("credential already exists")
)

// IsUserNotFound returns true if the error indicates a missing user.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsCredentialNotFound returns true if the error indicates a missing credential.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}
