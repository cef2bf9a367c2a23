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

package oidc

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrClientNotFound is returned when a client ID is not registered.
var ErrClientNotFound = errors.New("client not found")

// Client is a relying party registered out-of-band. The core treats the
// registry as read-only.
type Client struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	RedirectURIs []string `yaml:"redirect_uris" json:"redirect_uris"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
}

// AllowsRedirectURI reports whether the URI exactly matches a registered
// redirect URI. No pattern or prefix matching.
func (c *Client) AllowsRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// ClientRegistry resolves OIDC client registrations.
type ClientRegistry interface {
	// Get returns the client with the given ID, or ErrClientNotFound.
	Get(clientID string) (*Client, error)

	// List returns all registered clients, ordered by ID.
	List() ([]*Client, error)
}

// MemoryRegistry is an in-memory ClientRegistry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewMemoryRegistry creates a registry holding the given clients.
func NewMemoryRegistry(clients ...*Client) *MemoryRegistry {
	r := &MemoryRegistry{clients: make(map[string]*Client, len(clients))}
	for _, c := range clients {
		r.clients[c.ID] = c
	}
	return r
}

// Get returns the client with the given ID.
func (r *MemoryRegistry) Get(clientID string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return c, nil
}

// List returns all registered clients, ordered by ID.
func (r *MemoryRegistry) List() ([]*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// clientsFile is the on-disk shape of a client registry file.
type clientsFile struct {
	Clients []*Client `yaml:"clients"`
}

// LoadClients reads a YAML client registry file and returns a registry
// backed by its contents.
func LoadClients(path string) (*MemoryRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clients file: %w", err)
	}

	var file clientsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse clients file: %w", err)
	}

	for _, c := range file.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("client with empty id in %s", path)
		}
		if len(c.RedirectURIs) == 0 {
			return nil, fmt.Errorf("client %s has no redirect URIs", c.ID)
		}
	}
	return NewMemoryRegistry(file.Clients...), nil
}
