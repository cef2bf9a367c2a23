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

package storage

import (
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory storage backend with per-record TTL support.
// Expired records are removed lazily on access.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	closed  bool
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemory creates a new in-memory storage backend.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// NewMemoryWithClock creates an in-memory backend with an injectable clock.
// Used by tests that need to simulate TTL expiry.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		now:     now,
	}
}

// Get retrieves the value for the given key.
func (m *Memory) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.expired(m.now()) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Put stores the value for the given key.
func (m *Memory) Put(key string, value []byte, opts *Options) error {
	if key == "" {
		return ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	entry := &memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)

	if opts != nil && opts.TTL > 0 {
		entry.expiresAt = m.now().Add(opts.TTL)
	}

	m.entries[key] = entry
	return nil
}

// Delete removes the key and its value.
func (m *Memory) Delete(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.entries, key)
	return nil
}

// Take atomically retrieves and deletes the value for the given key.
// The read and delete happen under one lock acquisition, so of two
// concurrent callers exactly one receives the value.
func (m *Memory) Take(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.entries, key)

	if entry.expired(m.now()) {
		return nil, ErrNotFound
	}
	return entry.value, nil
}

// List returns all live keys with the given prefix.
func (m *Memory) List(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	now := m.now()
	keys := make([]string, 0, len(m.entries))
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Exists checks if a live key exists.
func (m *Memory) Exists(key string) (bool, error) {
	_, err := m.Get(key)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Close releases the backend. Subsequent operations return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = nil
	m.closed = true
	return nil
}
