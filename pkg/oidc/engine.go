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

// Package oidc implements the authorization-code grant: code issuance at
// /authorize, one-shot code exchange at /token, and bearer-token claims
// at /userinfo. Authorization codes are consumed atomically before any
// validation, so a code that fails one exchange can never succeed in
// another.
package oidc

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-idp/pkg/identity"
	"github.com/jeremyhahn/go-passkey-idp/pkg/keys"
	"github.com/jeremyhahn/go-passkey-idp/pkg/session"
	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

// DefaultScope is granted when the authorization request omits scope.
const DefaultScope = "openid profile email"

// DefaultLoginPath is where unauthenticated /authorize visitors are sent.
const DefaultLoginPath = "/login"

// EngineParams contains dependencies for creating an Engine.
type EngineParams struct {
	// Clients resolves OIDC client registrations (required).
	Clients ClientRegistry

	// Users resolves token subjects (required).
	Users identity.UserRepository

	// Sessions validates browser sessions at /authorize (required).
	Sessions *session.Manager

	// Keys signs and verifies tokens (required).
	Keys *keys.Service

	// Codes is the backend holding in-flight authorization codes (required).
	Codes storage.Backend

	// Issuer is the provider's external base URL (required).
	Issuer string

	// LoginPath overrides DefaultLoginPath.
	LoginPath string
}

// Engine implements the OIDC authorization-code flow.
type Engine struct {
	clients   ClientRegistry
	users     identity.UserRepository
	sessions  *session.Manager
	keys      *keys.Service
	codes     *codeStore
	issuer    string
	loginPath string
	now       func() time.Time
}

// NewEngine creates an OIDC engine with the provided dependencies.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Clients == nil {
		return nil, fmt.Errorf("client registry is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Keys == nil {
		return nil, fmt.Errorf("key service is required")
	}
	if params.Codes == nil {
		return nil, fmt.Errorf("code backend is required")
	}
	if params.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if params.LoginPath == "" {
		params.LoginPath = DefaultLoginPath
	}
	return &Engine{
		clients:   params.Clients,
		users:     params.Users,
		sessions:  params.Sessions,
		keys:      params.Keys,
		codes:     newCodeStore(params.Codes),
		issuer:    params.Issuer,
		loginPath: params.LoginPath,
		now:       time.Now,
	}, nil
}

// AuthorizeRequest carries the /authorize query parameters plus the
// session token presented by the browser.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	SessionToken        string
}

// Authorize validates an authorization request and returns the URL the
// browser must be redirected to: the client's redirect URI carrying a
// fresh code, or the login page carrying the original parameters when no
// valid session was presented. Session failures never surface as errors.
func (e *Engine) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	if req.ResponseType != "code" {
		return "", Describe(ErrInvalidRequest, "response_type must be code")
	}
	if req.ClientID == "" || req.RedirectURI == "" {
		return "", Describe(ErrInvalidRequest, "client_id and redirect_uri are required")
	}

	client, err := e.clients.Get(req.ClientID)
	if err != nil {
		return "", Describe(ErrInvalidClient, "unknown client")
	}
	if !client.AllowsRedirectURI(req.RedirectURI) {
		return "", Describe(ErrInvalidRequest, "redirect_uri is not registered")
	}

	if req.CodeChallenge != "" {
		switch req.CodeChallengeMethod {
		case "", "S256":
		default:
			return "", Describe(ErrInvalidRequest, "unsupported code_challenge_method")
		}
	}

	sess, err := e.sessions.Validate(req.SessionToken)
	if err != nil {
		// Missing, unknown and expired sessions all degrade to the same
		// login redirect so the failure mode is not observable.
		return e.loginRedirect(req), nil
	}

	scope := req.Scope
	if scope == "" {
		scope = DefaultScope
	}
	code, err := e.codes.Mint(req.ClientID, req.RedirectURI, scope, sess.UserID, req.Nonce, req.CodeChallenge)
	if err != nil {
		return "", WrapError("mint code", ErrServerError)
	}

	target, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", Describe(ErrInvalidRequest, "redirect_uri is not a valid URL")
	}
	q := target.Query()
	q.Set("code", code.Code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	target.RawQuery = q.Encode()
	return target.String(), nil
}

// loginRedirect builds the login URL preserving the parameters needed to
// resume the flow after authentication. Nonce and PKCE parameters must
// survive the round trip or the resumed flow would mint a code with no
// bound challenge.
func (e *Engine) loginRedirect(req AuthorizeRequest) string {
	q := url.Values{}
	q.Set("client_id", req.ClientID)
	q.Set("redirect_uri", req.RedirectURI)
	if req.Scope != "" {
		q.Set("scope", req.Scope)
	}
	if req.State != "" {
		q.Set("state", req.State)
	}
	if req.Nonce != "" {
		q.Set("nonce", req.Nonce)
	}
	if req.CodeChallenge != "" {
		q.Set("code_challenge", req.CodeChallenge)
		if req.CodeChallengeMethod != "" {
			q.Set("code_challenge_method", req.CodeChallengeMethod)
		}
	}
	return e.issuer + e.loginPath + "?" + q.Encode()
}

// TokenRequest carries the /token request body.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

// TokenResponse is the successful /token response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token"`
	Scope       string `json:"scope"`
}

// Token exchanges an authorization code for an id_token and access_token.
// The code is consumed before any validation runs; every failure after
// that point leaves it burned.
func (e *Engine) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != "authorization_code" {
		return nil, Describe(ErrUnsupportedGrantType, "only authorization_code is supported")
	}
	if req.Code == "" || req.RedirectURI == "" || req.ClientID == "" {
		return nil, Describe(ErrInvalidRequest, "code, redirect_uri and client_id are required")
	}

	if _, err := e.clients.Get(req.ClientID); err != nil {
		return nil, Describe(ErrInvalidClient, "unknown client")
	}

	code, err := e.codes.Take(req.Code)
	if err != nil {
		return nil, WrapError("consume code", ErrInvalidGrant)
	}
	if code.ClientID != req.ClientID || code.RedirectURI != req.RedirectURI {
		return nil, WrapError("match code binding", ErrInvalidGrant)
	}
	if code.CodeChallenge != "" && !verifyPKCE(code.CodeChallenge, req.CodeVerifier) {
		return nil, WrapError("verify pkce", ErrInvalidGrant)
	}

	user, err := e.users.GetByID(ctx, code.UserID)
	if err != nil {
		return nil, WrapError("resolve user", ErrInvalidGrant)
	}

	jti := uuid.New().String()
	idToken, err := e.keys.Sign(keys.IDToken, keys.SignParams{
		Subject:  user.ID,
		Audience: code.ClientID,
		JTI:      jti,
		Nonce:    code.Nonce,
	})
	if err != nil {
		return nil, WrapError("sign id_token", ErrServerError)
	}
	accessToken, err := e.keys.Sign(keys.AccessToken, keys.SignParams{
		Subject:  user.ID,
		Audience: code.ClientID,
		JTI:      jti,
		Scope:    code.Scope,
	})
	if err != nil {
		return nil, WrapError("sign access_token", ErrServerError)
	}

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(e.keys.TokenTTL().Seconds()),
		IDToken:     idToken,
		Scope:       code.Scope,
	}, nil
}

// verifyPKCE checks an S256 code verifier against the bound challenge.
func verifyPKCE(challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	digest := sha256.Sum256([]byte(verifier))
	derived := base64.RawURLEncoding.EncodeToString(digest[:])
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}

// UserInfoResponse is the /userinfo response body. Only claims actually
// present in the token are echoed.
type UserInfoResponse struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// UserInfo resolves a bearer access token to its subject's claims.
func (e *Engine) UserInfo(ctx context.Context, bearerToken string) (*UserInfoResponse, error) {
	if bearerToken == "" {
		return nil, Describe(ErrInvalidRequest, "missing bearer token")
	}

	claims, err := e.keys.Verify(bearerToken)
	if err != nil {
		return nil, WrapError("verify token", ErrInvalidToken)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, WrapError("check sub", ErrInvalidToken)
	}
	// Verify already enforces expiry; re-check so a parser regression
	// cannot silently admit stale tokens.
	exp, ok := claims["exp"].(float64)
	if !ok || e.now().After(time.Unix(int64(exp), 0)) {
		return nil, WrapError("check exp", ErrInvalidToken)
	}

	user, err := e.users.GetByID(ctx, sub)
	if err != nil {
		return nil, WrapError("resolve user", ErrInvalidToken)
	}

	resp := &UserInfoResponse{Sub: user.ID, Name: user.ID}
	if name, ok := claims["name"].(string); ok && name != "" {
		resp.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		resp.Email = email
	}
	return resp, nil
}
