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

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

func TestManager_CreateAndValidate(t *testing.T) {
	m := NewManager(storage.NewMemory())

	sess, err := m.Create("user-1", "alice", true)
	require.NoError(t, err)
	assert.Len(t, sess.Token, 64) // 32 bytes hex encoded
	assert.Equal(t, 24*time.Hour, sess.ExpiresAt.Sub(sess.CreatedAt))

	got, err := m.Validate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.IsAdmin)
}

func TestManager_TokensAreUnique(t *testing.T) {
	m := NewManager(storage.NewMemory())

	s1, err := m.Create("user-1", "alice", false)
	require.NoError(t, err)
	s2, err := m.Create("user-1", "alice", false)
	require.NoError(t, err)
	assert.NotEqual(t, s1.Token, s2.Token)
}

func TestManager_ValidateUnknownToken(t *testing.T) {
	m := NewManager(storage.NewMemory())

	_, err := m.Validate("deadbeef")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = m.Validate("")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_ExpiredSessionIsDeleted(t *testing.T) {
	backend := storage.NewMemory()
	m := NewManager(backend)

	created := time.Now().UTC()
	m.now = func() time.Time { return created }

	sess, err := m.Create("user-1", "alice", false)
	require.NoError(t, err)

	m.now = func() time.Time { return created.Add(DefaultTTL + time.Second) }
	_, err = m.Validate(sess.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// The record must be gone, not just rejected.
	exists, err := backend.Exists("session:" + sess.Token)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestManager_RevokeIsIdempotent(t *testing.T) {
	m := NewManager(storage.NewMemory())

	sess, err := m.Create("user-1", "alice", false)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(sess.Token))
	_, err = m.Validate(sess.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, m.Revoke(sess.Token))
	require.NoError(t, m.Revoke("never-existed"))
}

func TestManager_RevokeAll(t *testing.T) {
	m := NewManager(storage.NewMemory())

	s1, err := m.Create("user-1", "alice", false)
	require.NoError(t, err)
	s2, err := m.Create("user-1", "alice", false)
	require.NoError(t, err)
	other, err := m.Create("user-2", "bob", false)
	require.NoError(t, err)

	require.NoError(t, m.RevokeAll("user-1"))

	_, err = m.Validate(s1.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Validate(s2.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	got, err := m.Validate(other.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-2", got.UserID)
}
