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
	"fmt"
	"sync"
	"time"
)

// DiscoveryCacheTTL is how long a rendered discovery document is served
// before being rebuilt.
const DiscoveryCacheTTL = time.Hour

// DiscoveryDocument is the OIDC provider metadata published at
// /.well-known/openid-configuration.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// Discovery renders and caches the provider metadata document. The cache
// is owned by the engine instance, not module state, and can be dropped
// with InvalidateDiscovery.
type Discovery struct {
	issuer string

	mu      sync.Mutex
	cached  []byte
	expires time.Time
	now     func() time.Time
}

// NewDiscovery creates a discovery document renderer for the issuer.
func NewDiscovery(issuer string) *Discovery {
	return &Discovery{issuer: issuer, now: time.Now}
}

// Document returns the rendered metadata JSON, rebuilding it at most once
// per cache interval.
func (d *Discovery) Document() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != nil && d.now().Before(d.expires) {
		return d.cached, nil
	}

	doc := DiscoveryDocument{
		Issuer:                            d.issuer,
		AuthorizationEndpoint:             d.issuer + "/authorize",
		TokenEndpoint:                     d.issuer + "/token",
		UserInfoEndpoint:                  d.issuer + "/userinfo",
		JWKSURI:                           d.issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		ScopesSupported:                   []string{"openid", "profile", "email"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		ClaimsSupported:                   []string{"sub", "name", "email"},
		CodeChallengeMethodsSupported:     []string{"S256"},
	}

	rendered, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render discovery document: %w", err)
	}
	d.cached = rendered
	d.expires = d.now().Add(DiscoveryCacheTTL)
	return rendered, nil
}

// InvalidateDiscovery drops the cached document.
func (d *Discovery) InvalidateDiscovery() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = nil
	d.expires = time.Time{}
}
