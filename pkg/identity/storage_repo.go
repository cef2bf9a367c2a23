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

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

// Storage key layout. Username lookups go through a dedicated index key so
// uniqueness is a single Exists check rather than a scan.
const (
	userKeyPrefix     = "user:"
	usernameKeyPrefix = "username:"
	credKeyPrefix     = "cred:"
	userCredKeyPrefix = "usercred:"
)

// StorageUserRepository implements UserRepository over a storage.Backend.
type StorageUserRepository struct {
	// mu serializes Create so the username-uniqueness check and the
	// index write happen without interleaving writers.
	mu      sync.Mutex
	backend storage.Backend
}

// NewStorageUserRepository creates a user repository over the given backend.
func NewStorageUserRepository(backend storage.Backend) *StorageUserRepository {
	return &StorageUserRepository{backend: backend}
}

// Create persists a new user and its username index entry.
func (r *StorageUserRepository) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	taken, err := r.backend.Exists(usernameKeyPrefix + user.Username)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if taken {
		return ErrUserAlreadyExists
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := r.backend.Put(userKeyPrefix+user.ID, data, nil); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	if err := r.backend.Put(usernameKeyPrefix+user.Username, []byte(user.ID), nil); err != nil {
		return fmt.Errorf("store username index: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *StorageUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	data, err := r.backend.Get(userKeyPrefix + id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &user, nil
}

// GetByUsername retrieves a user via the username index.
func (r *StorageUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	id, err := r.backend.Get(usernameKeyPrefix + username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load username index: %w", err)
	}
	return r.GetByID(ctx, string(id))
}

// Count returns the number of registered users.
func (r *StorageUserRepository) Count(ctx context.Context) (int, error) {
	keys, err := r.backend.List(userKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	return len(keys), nil
}

// AdminExists reports whether any registered user holds the admin flag.
func (r *StorageUserRepository) AdminExists(ctx context.Context) (bool, error) {
	keys, err := r.backend.List(userKeyPrefix)
	if err != nil {
		return false, fmt.Errorf("list users: %w", err)
	}
	for _, key := range keys {
		data, err := r.backend.Get(key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return false, fmt.Errorf("load user: %w", err)
		}
		var user User
		if err := json.Unmarshal(data, &user); err != nil {
			return false, fmt.Errorf("decode user: %w", err)
		}
		if user.IsAdmin {
			return true, nil
		}
	}
	return false, nil
}

// StorageCredentialRepository implements CredentialRepository over a
// storage.Backend. Credentials are stored by ID with a per-user index for
// ownership scans.
type StorageCredentialRepository struct {
	backend storage.Backend
}

// NewStorageCredentialRepository creates a credential repository over the
// given backend.
func NewStorageCredentialRepository(backend storage.Backend) *StorageCredentialRepository {
	return &StorageCredentialRepository{backend: backend}
}

func credKey(credID []byte) string {
	return credKeyPrefix + hex.EncodeToString(credID)
}

func userCredKey(userID string, credID []byte) string {
	return userCredKeyPrefix + userID + ":" + hex.EncodeToString(credID)
}

// Save stores a new credential.
func (r *StorageCredentialRepository) Save(ctx context.Context, cred *Credential) error {
	exists, err := r.backend.Exists(credKey(cred.ID))
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	if exists {
		return ErrCredentialAlreadyExists
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := r.backend.Put(credKey(cred.ID), data, nil); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	if err := r.backend.Put(userCredKey(cred.UserID, cred.ID), []byte{}, nil); err != nil {
		return fmt.Errorf("store credential index: %w", err)
	}
	return nil
}

// GetByID retrieves a credential by its ID.
func (r *StorageCredentialRepository) GetByID(ctx context.Context, credID []byte) (*Credential, error) {
	data, err := r.backend.Get(credKey(credID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &cred, nil
}

// GetByUserID retrieves all credentials owned by a user.
func (r *StorageCredentialRepository) GetByUserID(ctx context.Context, userID string) ([]*Credential, error) {
	keys, err := r.backend.List(userCredKeyPrefix + userID + ":")
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	creds := make([]*Credential, 0, len(keys))
	for _, key := range keys {
		idHex := key[len(userCredKeyPrefix+userID+":"):]
		credID, err := hex.DecodeString(idHex)
		if err != nil {
			return nil, fmt.Errorf("decode credential index key: %w", err)
		}
		cred, err := r.GetByID(ctx, credID)
		if err != nil {
			if errors.Is(err, ErrCredentialNotFound) {
				continue
			}
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// Update persists changes to an existing credential.
func (r *StorageCredentialRepository) Update(ctx context.Context, cred *Credential) error {
	exists, err := r.backend.Exists(credKey(cred.ID))
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	if !exists {
		return ErrCredentialNotFound
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := r.backend.Put(credKey(cred.ID), data, nil); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// DeleteByUserID removes all credentials owned by a user.
func (r *StorageCredentialRepository) DeleteByUserID(ctx context.Context, userID string) error {
	keys, err := r.backend.List(userCredKeyPrefix + userID + ":")
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}
	for _, key := range keys {
		idHex := key[len(userCredKeyPrefix+userID+":"):]
		credID, err := hex.DecodeString(idHex)
		if err != nil {
			return fmt.Errorf("decode credential index key: %w", err)
		}
		if err := r.backend.Delete(credKey(credID)); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
		if err := r.backend.Delete(key); err != nil {
			return fmt.Errorf("delete credential index: %w", err)
		}
	}
	return nil
}
