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

// Package storage provides an abstraction layer for key-value storage
// backends with in-memory and file-based implementations.
//
// Records may carry a TTL; expired records behave as if deleted. The Take
// operation is an atomic read-and-delete: when multiple callers race on the
// same key, exactly one receives the value and the rest observe ErrNotFound.
// Single-use material (WebAuthn challenges, OIDC authorization codes) is
// consumed exclusively through Take.
package storage

import (
	"io/fs"
	"time"
)

// Backend defines the interface for storage backends.
// All implementations must be thread-safe.
type Backend interface {
	// Get retrieves the value for the given key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(key string) ([]byte, error)

	// Put stores the value for the given key with optional metadata.
	// If the key already exists, it will be overwritten.
	Put(key string, value []byte, opts *Options) error

	// Delete removes the key and its value from storage.
	// Deleting a missing key is not an error.
	Delete(key string) error

	// Take atomically retrieves and deletes the value for the given key.
	// Returns ErrNotFound if the key does not exist or has expired; a
	// second concurrent Take on the same key always returns ErrNotFound.
	Take(key string) ([]byte, error)

	// List returns all live keys with the given prefix.
	// If prefix is empty, all keys are returned.
	List(prefix string) ([]string, error)

	// Exists checks if a live key exists in storage.
	Exists(key string) (bool, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Options contains optional parameters for storage operations.
type Options struct {
	// TTL is the record lifetime. Zero means the record never expires.
	// Not every backend honors TTLs; the file backend stores durable
	// material only and ignores it.
	TTL time.Duration

	// Permissions sets the file permissions for file-based storage.
	Permissions fs.FileMode
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Permissions: 0600,
	}
}

// WithTTL returns Options carrying the given record lifetime.
func WithTTL(ttl time.Duration) *Options {
	opts := DefaultOptions()
	opts.TTL = ttl
	return opts
}
