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

package rest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jeremyhahn/go-passkey-idp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-idp/pkg/metrics"
	"github.com/jeremyhahn/go-passkey-idp/pkg/oidc"
)

// discoveryCacheControl is sent with the discovery and JWKS documents.
// Both change only on key rotation, which is rare.
const discoveryCacheControl = "public, max-age=3600"

// DiscoveryHandler handles GET /.well-known/openid-configuration requests.
func (h *HandlerContext) DiscoveryHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := h.discovery.Document()
	if err != nil {
		writeOIDCError(w, oidc.WrapError("discovery document", oidc.ErrServerError))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", discoveryCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// JWKSHandler handles GET /.well-known/jwks.json requests.
func (h *HandlerContext) JWKSHandler(w http.ResponseWriter, r *http.Request) {
	jwks, err := h.keys.JWKS()
	if err != nil {
		writeOIDCError(w, oidc.WrapError("jwks document", oidc.ErrServerError))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", discoveryCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(jwks)
}

// AuthorizeHandler handles GET /authorize requests. A valid session
// produces a code redirect to the client; anything else redirects to
// the login page with the flow parameters preserved.
func (h *HandlerContext) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	req := oidc.AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		SessionToken:        sessionToken(r),
	}

	location, err := h.engine.Authorize(r.Context(), req)
	if err != nil {
		metrics.RecordOperation(metrics.OpAuthorize, "error", time.Since(start).Seconds())
		writeOIDCError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpAuthorize, "success", time.Since(start).Seconds())
	http.Redirect(w, r, location, http.StatusFound)
}

// TokenHandler handles POST /token requests. Accepts the standard
// form-encoded body as well as JSON.
func (h *HandlerContext) TokenHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := parseTokenRequest(r)
	if err != nil {
		metrics.RecordOperation(metrics.OpTokenExchange, "error", time.Since(start).Seconds())
		writeOIDCError(w, oidc.Describe(oidc.ErrInvalidRequest, "malformed request body"))
		return
	}

	resp, err := h.engine.Token(r.Context(), req)
	if err != nil {
		metrics.RecordOperation(metrics.OpTokenExchange, "error", time.Since(start).Seconds())
		h.logger.Warn("Token exchange failed",
			logger.String("client_id", req.ClientID),
			logger.Error(err))
		writeOIDCError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpTokenExchange, "success", time.Since(start).Seconds())
	metrics.RecordTokenIssued(metrics.KindIDToken)
	metrics.RecordTokenIssued(metrics.KindAccessToken)

	// Token responses must never be cached
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, resp, http.StatusOK)
}

// parseTokenRequest decodes a token request from form or JSON encoding.
func parseTokenRequest(r *http.Request) (oidc.TokenRequest, error) {
	var req oidc.TokenRequest

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.GrantType = r.PostFormValue("grant_type")
	req.Code = r.PostFormValue("code")
	req.RedirectURI = r.PostFormValue("redirect_uri")
	req.ClientID = r.PostFormValue("client_id")
	req.CodeVerifier = r.PostFormValue("code_verifier")
	return req, nil
}

// UserInfoHandler handles GET and POST /userinfo requests.
func (h *HandlerContext) UserInfoHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	token := bearerToken(r)
	if token == "" {
		metrics.RecordOperation(metrics.OpUserInfo, "error", time.Since(start).Seconds())
		// A missing or malformed Authorization header is invalid_request,
		// not invalid_token, but still carries 401 here.
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, OIDCErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "missing bearer token",
		}, http.StatusUnauthorized)
		return
	}

	resp, err := h.engine.UserInfo(r.Context(), token)
	if err != nil {
		metrics.RecordOperation(metrics.OpUserInfo, "error", time.Since(start).Seconds())
		writeOIDCError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpUserInfo, "success", time.Since(start).Seconds())
	writeJSON(w, resp, http.StatusOK)
}

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}
