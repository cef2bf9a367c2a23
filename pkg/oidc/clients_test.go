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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.yaml")
	content := `clients:
  - id: relying-party
    name: Relying Party
    redirect_uris:
      - https://app.example.com/callback
    scopes:
      - openid
      - profile
  - id: second-app
    name: Second App
    redirect_uris:
      - https://second.example.com/cb
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	registry, err := LoadClients(path)
	require.NoError(t, err)

	client, err := registry.Get("relying-party")
	require.NoError(t, err)
	assert.Equal(t, "Relying Party", client.Name)
	assert.True(t, client.AllowsRedirectURI("https://app.example.com/callback"))
	assert.False(t, client.AllowsRedirectURI("https://app.example.com/callback/"))

	all, err := registry.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "relying-party", all[0].ID)
	assert.Equal(t, "second-app", all[1].ID)

	_, err = registry.Get("unknown")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestLoadClients_RejectsInvalidEntries(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "no-id.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clients:\n  - name: nameless\n    redirect_uris: [https://x.example.com]\n"), 0644))
	_, err := LoadClients(path)
	assert.Error(t, err)

	path = filepath.Join(dir, "no-uris.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clients:\n  - id: app\n    name: App\n"), 0644))
	_, err = LoadClients(path)
	assert.Error(t, err)

	_, err = LoadClients(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
