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

// Package keys manages the provider's RS256 signing key pair: lazy
// provisioning, token minting and verification, and the published JWKS.
// The key pair is persisted as PKCS#8 PEM in the storage backend and the
// key ID is always derived from the persisted bytes, never from the
// in-memory copy, so every replica that reads the same record advertises
// the same kid.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

const (
	// keyPairStorageKey is where the PEM-encoded PKCS#8 private key lives.
	keyPairStorageKey = "signing:keypair"

	// rsaKeyBits is the modulus size for generated signing keys.
	rsaKeyBits = 2048

	// kidHexChars is the length of the key ID: the leading hex characters
	// of the SHA-256 digest of the SPKI DER encoding.
	kidHexChars = 16

	// DefaultTokenTTL is the lifetime of minted tokens.
	DefaultTokenTTL = time.Hour

	// DefaultJWKSCacheTTL is how long a rendered JWKS document is served
	// before being rebuilt from the persisted key.
	DefaultJWKSCacheTTL = time.Hour
)

// TokenKind selects the claim shape of a minted token.
type TokenKind string

const (
	// IDToken is the OIDC identity token.
	IDToken TokenKind = "id_token"

	// AccessToken is the bearer token accepted by the userinfo endpoint.
	AccessToken TokenKind = "access_token"
)

// SignParams carries the per-token claim inputs.
type SignParams struct {
	// Subject is the user ID the token is issued for.
	Subject string

	// Audience is the client ID the token is issued to.
	Audience string

	// JTI is the unique token identifier. Both tokens of a single code
	// exchange share one JTI so they can be correlated in audit logs.
	JTI string

	// Nonce is echoed into id_tokens when the authorization request
	// carried one. Ignored for access tokens.
	Nonce string

	// Scope is the granted scope string, carried on access tokens only.
	Scope string
}

// ServiceParams configures a key Service.
type ServiceParams struct {
	// Backend persists the key pair. Required.
	Backend storage.Backend

	// Issuer is the value of the iss claim and the issuer enforced
	// during verification. Required.
	Issuer string

	// TokenTTL is the lifetime of minted tokens. Defaults to
	// DefaultTokenTTL.
	TokenTTL time.Duration

	// JWKSCacheTTL is how long the rendered JWKS is cached. Defaults to
	// DefaultJWKSCacheTTL.
	JWKSCacheTTL time.Duration
}

// Service provisions and uses the provider's RS256 signing key.
type Service struct {
	backend      storage.Backend
	issuer       string
	tokenTTL     time.Duration
	jwksCacheTTL time.Duration

	mu         sync.RWMutex
	privateKey *rsa.PrivateKey
	kid        string

	jwksMu      sync.Mutex
	jwksCached  []byte
	jwksExpires time.Time

	now func() time.Time
}

// NewService creates a key service. The key pair is not provisioned until
// EnsureKeyPair or the first Sign call.
func NewService(params ServiceParams) (*Service, error) {
	if params.Backend == nil {
		return nil, fmt.Errorf("keys: backend is required")
	}
	if params.Issuer == "" {
		return nil, fmt.Errorf("keys: issuer is required")
	}
	if params.TokenTTL <= 0 {
		params.TokenTTL = DefaultTokenTTL
	}
	if params.JWKSCacheTTL <= 0 {
		params.JWKSCacheTTL = DefaultJWKSCacheTTL
	}
	return &Service{
		backend:      params.Backend,
		issuer:       params.Issuer,
		tokenTTL:     params.TokenTTL,
		jwksCacheTTL: params.JWKSCacheTTL,
		now:          time.Now,
	}, nil
}

// EnsureKeyPair loads the persisted signing key, generating and persisting
// a new RSA-2048 pair if none exists. It is idempotent and safe to call
// concurrently; repeated calls return the same key ID.
func (s *Service) EnsureKeyPair() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.privateKey != nil {
		return nil
	}

	pemBytes, err := s.backend.Get(keyPairStorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		key, genErr := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if genErr != nil {
			return fmt.Errorf("generate signing key: %w", genErr)
		}
		der, genErr := x509.MarshalPKCS8PrivateKey(key)
		if genErr != nil {
			return fmt.Errorf("encode signing key: %w", genErr)
		}
		encoded := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
		if genErr = s.backend.Put(keyPairStorageKey, encoded, &storage.Options{Permissions: 0600}); genErr != nil {
			return fmt.Errorf("persist signing key: %w", genErr)
		}
		// Read back what was actually stored. The kid must describe the
		// persisted record, not the in-memory key we just built.
		pemBytes, err = s.backend.Get(keyPairStorageKey)
	}
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}

	key, kid, err := decodeKeyPair(pemBytes)
	if err != nil {
		return err
	}
	s.privateKey = key
	s.kid = kid
	return nil
}

// decodeKeyPair parses a PEM-encoded PKCS#8 RSA private key and derives
// its key ID from the SPKI encoding of the public half.
func decodeKeyPair(pemBytes []byte) (*rsa.PrivateKey, string, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, "", fmt.Errorf("%w: no PEM block", ErrInvalidKeyMaterial)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, "", fmt.Errorf("%w: not an RSA key", ErrInvalidKeyMaterial)
	}

	spki, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, "", fmt.Errorf("derive key ID: %w", err)
	}
	digest := sha256.Sum256(spki)
	kid := hex.EncodeToString(digest[:])[:kidHexChars]
	return key, kid, nil
}

// KID returns the current key ID, provisioning the key pair if needed.
func (s *Service) KID() (string, error) {
	if err := s.EnsureKeyPair(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kid, nil
}

// Sign mints a signed token of the given kind. Both kinds carry iss, sub,
// aud, exp, iat and jti; id_tokens additionally carry the nonce when one
// was supplied, access_tokens carry the granted scope.
func (s *Service) Sign(kind TokenKind, params SignParams) (string, error) {
	if err := s.EnsureKeyPair(); err != nil {
		return "", err
	}

	s.mu.RLock()
	key := s.privateKey
	kid := s.kid
	s.mu.RUnlock()

	issuedAt := s.now().UTC()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": params.Subject,
		"aud": params.Audience,
		"iat": issuedAt.Unix(),
		"exp": issuedAt.Add(s.tokenTTL).Unix(),
		"jti": params.JTI,
	}
	switch kind {
	case IDToken:
		if params.Nonce != "" {
			claims["nonce"] = params.Nonce
		}
	case AccessToken:
		if params.Scope != "" {
			claims["scope"] = params.Scope
		}
	default:
		return "", fmt.Errorf("unsupported token kind: %s", kind)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", kind, err)
	}
	return signed, nil
}

// Verify validates a token's signature, algorithm, issuer and expiry and
// returns its claims. Every failure collapses to ErrInvalidToken so the
// caller cannot leak a reason to the client.
func (s *Service) Verify(tokenString string) (jwt.MapClaims, error) {
	if err := s.EnsureKeyPair(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	publicKey := &s.privateKey.PublicKey
	s.mu.RUnlock()

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// JWKS returns the rendered JSON Web Key Set containing the public half of
// the signing key. The document is cached and rebuilt at most once per
// cache interval; InvalidateJWKS forces an immediate rebuild.
func (s *Service) JWKS() ([]byte, error) {
	if err := s.EnsureKeyPair(); err != nil {
		return nil, err
	}

	s.jwksMu.Lock()
	defer s.jwksMu.Unlock()

	if s.jwksCached != nil && s.now().Before(s.jwksExpires) {
		return s.jwksCached, nil
	}

	s.mu.RLock()
	publicKey := &s.privateKey.PublicKey
	kid := s.kid
	s.mu.RUnlock()

	set := jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       publicKey,
			KeyID:     kid,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}},
	}
	rendered, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("render jwks: %w", err)
	}
	s.jwksCached = rendered
	s.jwksExpires = s.now().Add(s.jwksCacheTTL)
	return rendered, nil
}

// TokenTTL returns the lifetime of minted tokens.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

// InvalidateJWKS drops the cached JWKS so the next request rebuilds it.
func (s *Service) InvalidateJWKS() {
	s.jwksMu.Lock()
	defer s.jwksMu.Unlock()
	s.jwksCached = nil
	s.jwksExpires = time.Time{}
}
