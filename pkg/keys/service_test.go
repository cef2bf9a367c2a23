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

package keys

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

const testIssuer = "https://idp.example.com"

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Backend: storage.NewMemory(),
		Issuer:  testIssuer,
	})
	require.NoError(t, err)
	return svc
}

func TestEnsureKeyPair_Idempotent(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.EnsureKeyPair())
	kid1, err := svc.KID()
	require.NoError(t, err)
	assert.Len(t, kid1, kidHexChars)

	require.NoError(t, svc.EnsureKeyPair())
	kid2, err := svc.KID()
	require.NoError(t, err)
	assert.Equal(t, kid1, kid2)
}

func TestEnsureKeyPair_ReloadsPersistedKey(t *testing.T) {
	backend := storage.NewMemory()

	svc1, err := NewService(ServiceParams{Backend: backend, Issuer: testIssuer})
	require.NoError(t, err)
	kid1, err := svc1.KID()
	require.NoError(t, err)

	// A second service over the same backend must load the same key.
	svc2, err := NewService(ServiceParams{Backend: backend, Issuer: testIssuer})
	require.NoError(t, err)
	kid2, err := svc2.KID()
	require.NoError(t, err)
	assert.Equal(t, kid1, kid2)
}

func TestSignAndVerify_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Sign(IDToken, SignParams{
		Subject:  "user-1",
		Audience: "client-1",
		JTI:      "jti-1",
		Nonce:    "n-abc",
	})
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testIssuer, claims["iss"])
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "client-1", claims["aud"])
	assert.Equal(t, "jti-1", claims["jti"])
	assert.Equal(t, "n-abc", claims["nonce"])
}

func TestSign_AccessTokenCarriesScope(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Sign(AccessToken, SignParams{
		Subject:  "user-1",
		Audience: "client-1",
		JTI:      "jti-1",
		Scope:    "openid profile",
	})
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "openid profile", claims["scope"])
	assert.NotContains(t, claims, "nonce")
}

func TestVerify_RejectsExpired(t *testing.T) {
	svc := newTestService(t)

	issued := time.Now().UTC()
	svc.now = func() time.Time { return issued }

	token, err := svc.Sign(AccessToken, SignParams{Subject: "u", Audience: "c", JTI: "j"})
	require.NoError(t, err)

	// One second past the expiry.
	svc.now = func() time.Time { return issued.Add(DefaultTokenTTL + time.Second) }
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsGarbage(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsWrongIssuer(t *testing.T) {
	backend := storage.NewMemory()
	signer, err := NewService(ServiceParams{Backend: backend, Issuer: "https://other.example.com"})
	require.NoError(t, err)
	verifier, err := NewService(ServiceParams{Backend: backend, Issuer: testIssuer})
	require.NoError(t, err)

	token, err := signer.Sign(AccessToken, SignParams{Subject: "u", Audience: "c", JTI: "j"})
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWKS_MatchesTokenKID(t *testing.T) {
	svc := newTestService(t)

	kid, err := svc.KID()
	require.NoError(t, err)

	rendered, err := svc.JWKS()
	require.NoError(t, err)

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Alg string `json:"alg"`
			Use string `json:"use"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rendered, &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, kid, doc.Keys[0].Kid)
	assert.Equal(t, "RSA", doc.Keys[0].Kty)
	assert.Equal(t, "RS256", doc.Keys[0].Alg)
	assert.Equal(t, "sig", doc.Keys[0].Use)
}

func TestJWKS_CachedUntilInvalidated(t *testing.T) {
	svc := newTestService(t)

	first, err := svc.JWKS()
	require.NoError(t, err)

	second, err := svc.JWKS()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	svc.InvalidateJWKS()
	third, err := svc.JWKS()
	require.NoError(t, err)
	// Same key, so same content, but the rebuild path must not fail.
	assert.JSONEq(t, string(first), string(third))
}
