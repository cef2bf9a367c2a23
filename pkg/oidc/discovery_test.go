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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscovery_Document(t *testing.T) {
	d := NewDiscovery(testIssuer)

	rendered, err := d.Document()
	require.NoError(t, err)

	var doc DiscoveryDocument
	require.NoError(t, json.Unmarshal(rendered, &doc))
	assert.Equal(t, testIssuer, doc.Issuer)
	assert.Equal(t, testIssuer+"/authorize", doc.AuthorizationEndpoint)
	assert.Equal(t, testIssuer+"/token", doc.TokenEndpoint)
	assert.Equal(t, testIssuer+"/userinfo", doc.UserInfoEndpoint)
	assert.Equal(t, testIssuer+"/.well-known/jwks.json", doc.JWKSURI)
	assert.Equal(t, []string{"code"}, doc.ResponseTypesSupported)
	assert.Equal(t, []string{"RS256"}, doc.IDTokenSigningAlgValuesSupported)
	assert.Equal(t, []string{"S256"}, doc.CodeChallengeMethodsSupported)
}

func TestDiscovery_CachedUntilInvalidated(t *testing.T) {
	d := NewDiscovery(testIssuer)

	first, err := d.Document()
	require.NoError(t, err)
	second, err := d.Document()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	d.InvalidateDiscovery()
	third, err := d.Document()
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(third))
}
