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

// Package session issues and validates opaque browser session tokens.
// Tokens are 32 random bytes, hex encoded, and never carry user data;
// the record behind the token does.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

const (
	// DefaultTTL is the session lifetime.
	DefaultTTL = 24 * time.Hour

	// tokenBytes is the entropy of a session token before hex encoding.
	tokenBytes = 32

	sessionKeyPrefix = "session:"
)

var (
	// ErrSessionNotFound is returned for unknown or expired tokens.
	ErrSessionNotFound = errors.New("session not found")
)

// Session is the record behind a session token.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager creates, validates and revokes sessions over a storage backend.
type Manager struct {
	backend storage.Backend
	ttl     time.Duration
	now     func() time.Time
}

// NewManager creates a session manager with the default 24 hour TTL.
func NewManager(backend storage.Backend) *Manager {
	return NewManagerWithTTL(backend, DefaultTTL)
}

// NewManagerWithTTL creates a session manager with a custom TTL.
func NewManagerWithTTL(backend storage.Backend, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{backend: backend, ttl: ttl, now: time.Now}
}

// TTL returns the configured session lifetime. Used to set cookie Max-Age.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create issues a new session for the given user and returns it.
func (m *Manager) Create(userID, username string, isAdmin bool) (*Session, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	created := m.now().UTC()
	sess := &Session{
		Token:     hex.EncodeToString(raw),
		UserID:    userID,
		Username:  username,
		IsAdmin:   isAdmin,
		CreatedAt: created,
		ExpiresAt: created.Add(m.ttl),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := m.backend.Put(sessionKeyPrefix+sess.Token, data, storage.WithTTL(m.ttl)); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Validate resolves a token to its session. Expired sessions are deleted
// on sight and reported as not found. The expiry check lives here, not
// only in the backend, because file-backed records have no TTL support.
func (m *Manager) Validate(token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	data, err := m.backend.Get(sessionKeyPrefix + token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !m.now().Before(sess.ExpiresAt) {
		_ = m.backend.Delete(sessionKeyPrefix + token)
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

// Revoke deletes a session. Revoking an unknown token is not an error.
func (m *Manager) Revoke(token string) error {
	if token == "" {
		return nil
	}
	if err := m.backend.Delete(sessionKeyPrefix + token); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RevokeAll deletes every session belonging to the given user.
func (m *Manager) RevokeAll(userID string) error {
	keys, err := m.backend.List(sessionKeyPrefix)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, key := range keys {
		data, err := m.backend.Get(key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return fmt.Errorf("load session: %w", err)
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if sess.UserID != userID {
			continue
		}
		if err := m.backend.Delete(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	return nil
}
