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

import "context"

// UserRepository is the persistence interface for users.
type UserRepository interface {
	// Create persists a new user. Returns ErrUserAlreadyExists if the
	// username is already taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by their opaque ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername retrieves a user by their unique username.
	// Returns ErrUserNotFound if the user does not exist.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Count returns the number of registered users.
	Count(ctx context.Context) (int, error)

	// AdminExists reports whether any user holds the admin flag.
	AdminExists(ctx context.Context) (bool, error)
}

// CredentialRepository is the persistence interface for WebAuthn credentials.
type CredentialRepository interface {
	// Save stores a new credential. Returns ErrCredentialAlreadyExists
	// if a credential with the same ID is already registered.
	Save(ctx context.Context, cred *Credential) error

	// GetByID retrieves a credential by its authenticator-assigned ID.
	// Returns ErrCredentialNotFound if it does not exist.
	GetByID(ctx context.Context, credID []byte) (*Credential, error)

	// GetByUserID retrieves all credentials owned by a user.
	// Returns an empty slice if the user has none.
	GetByUserID(ctx context.Context, userID string) ([]*Credential, error)

	// Update persists changes to an existing credential (sign counter,
	// last-used timestamp). Returns ErrCredentialNotFound if missing.
	Update(ctx context.Context, cred *Credential) error

	// DeleteByUserID removes all credentials owned by a user.
	DeleteByUserID(ctx context.Context, userID string) error
}
