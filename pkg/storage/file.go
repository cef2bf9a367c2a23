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
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File is a file-based storage backend. Each record is stored as a single
// file under the base directory; keys are encoded so that separators and
// other unsafe characters never reach the filesystem. TTLs are ignored:
// the file backend holds durable material (signing keys, user records),
// not ephemeral challenges or codes.
type File struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// NewFile creates a file-based backend rooted at the given directory,
// creating it if necessary.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: base path is required")
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("storage: failed to create base directory: %w", err)
	}
	return &File{path: path}, nil
}

// encodeKey maps a logical key to a flat, filesystem-safe file name.
func encodeKey(key string) string {
	return hex.EncodeToString([]byte(key)) + ".rec"
}

func decodeKey(name string) (string, bool) {
	name, ok := strings.CutSuffix(name, ".rec")
	if !ok {
		return "", false
	}
	raw, err := hex.DecodeString(name)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// Get retrieves the value for the given key.
func (f *File) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}
	return f.read(key)
}

func (f *File) read(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(f.path, encodeKey(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read failed: %w", err)
	}
	return data, nil
}

// Put stores the value for the given key.
func (f *File) Put(key string, value []byte, opts *Options) error {
	if key == "" {
		return ErrInvalidKey
	}

	perm := os.FileMode(0600)
	if opts != nil && opts.Permissions != 0 {
		perm = opts.Permissions
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	target := filepath.Join(f.path, encodeKey(key))
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, perm); err != nil {
		return fmt.Errorf("storage: write failed: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("storage: rename failed: %w", err)
	}
	return nil
}

// Delete removes the key and its value.
func (f *File) Delete(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	err := os.Remove(filepath.Join(f.path, encodeKey(key)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete failed: %w", err)
	}
	return nil
}

// Take atomically retrieves and deletes the value for the given key.
// Serialized by the backend mutex so only one caller can win.
func (f *File) Take(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}

	data, err := f.read(key)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(filepath.Join(f.path, encodeKey(key))); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("storage: delete failed: %w", err)
	}
	return data, nil
}

// List returns all keys with the given prefix.
func (f *File) List(prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}

	entries, err := os.ReadDir(f.path)
	if err != nil {
		return nil, fmt.Errorf("storage: list failed: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := decodeKey(entry.Name())
		if !ok {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Exists checks if a key exists.
func (f *File) Exists(key string) (bool, error) {
	_, err := f.Get(key)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Close releases the backend.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
