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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

const (
	codeKeyPrefix = "code:"

	// CodeTTL is the authorization code lifetime.
	CodeTTL = 600 * time.Second
)

// AuthorizationCode binds a minted code to the request that created it.
type AuthorizationCode struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scope       string    `json:"scope"`
	UserID      string    `json:"user_id"`
	Nonce       string    `json:"nonce,omitempty"`
	// CodeChallenge is the S256 PKCE challenge bound at /authorize, empty
	// when the client did not use PKCE.
	CodeChallenge string    `json:"code_challenge,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// codeStore mints and consumes single-use authorization codes.
type codeStore struct {
	backend storage.Backend
	now     func() time.Time
}

func newCodeStore(backend storage.Backend) *codeStore {
	return &codeStore{backend: backend, now: time.Now}
}

// Mint creates and persists a fresh authorization code.
func (s *codeStore) Mint(clientID, redirectURI, scope, userID, nonce, codeChallenge string) (*AuthorizationCode, error) {
	created := s.now().UTC()
	code := &AuthorizationCode{
		Code:          uuid.New().String(),
		ClientID:      clientID,
		RedirectURI:   redirectURI,
		Scope:         scope,
		UserID:        userID,
		Nonce:         nonce,
		CodeChallenge: codeChallenge,
		CreatedAt:     created,
		ExpiresAt:     created.Add(CodeTTL),
	}

	data, err := json.Marshal(code)
	if err != nil {
		return nil, fmt.Errorf("encode authorization code: %w", err)
	}
	if err := s.backend.Put(codeKeyPrefix+code.Code, data, storage.WithTTL(CodeTTL)); err != nil {
		return nil, fmt.Errorf("store authorization code: %w", err)
	}
	return code, nil
}

// Take atomically consumes a code. The record is gone after the first
// call whatever the caller decides about it afterwards, which is exactly
// the one-shot semantics the token endpoint needs. Expiry is re-checked
// here because file-backed records have no native TTL.
func (s *codeStore) Take(code string) (*AuthorizationCode, error) {
	if code == "" {
		return nil, ErrInvalidGrant
	}

	data, err := s.backend.Take(codeKeyPrefix + code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	var rec AuthorizationCode
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode authorization code: %w", err)
	}
	if !s.now().Before(rec.ExpiresAt) {
		return nil, ErrInvalidGrant
	}
	return &rec, nil
}
