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
	"net/http"

	"github.com/jeremyhahn/go-passkey-idp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-idp/pkg/ceremony"
	"github.com/jeremyhahn/go-passkey-idp/pkg/health"
	"github.com/jeremyhahn/go-passkey-idp/pkg/keys"
	"github.com/jeremyhahn/go-passkey-idp/pkg/oidc"
	"github.com/jeremyhahn/go-passkey-idp/pkg/session"
)

// SessionCookieName is the name of the browser session cookie.
const SessionCookieName = "session"

// HandlerParams contains dependencies for creating a HandlerContext.
type HandlerParams struct {
	Ceremony      *ceremony.Service
	Engine        *oidc.Engine
	Discovery     *oidc.Discovery
	Keys          *keys.Service
	Sessions      *session.Manager
	HealthChecker *health.Checker
	CookieSecure  bool
	Logger        logger.Logger
}

// HandlerContext holds the dependencies shared by all HTTP handlers.
type HandlerContext struct {
	ceremony      *ceremony.Service
	engine        *oidc.Engine
	discovery     *oidc.Discovery
	keys          *keys.Service
	sessions      *session.Manager
	healthChecker *health.Checker
	cookieSecure  bool
	logger        logger.Logger
}

// NewHandlerContext creates a new handler context.
func NewHandlerContext(params *HandlerParams) *HandlerContext {
	return &HandlerContext{
		ceremony:      params.Ceremony,
		engine:        params.Engine,
		discovery:     params.Discovery,
		keys:          params.Keys,
		sessions:      params.Sessions,
		healthChecker: params.HealthChecker,
		cookieSecure:  params.CookieSecure,
		logger:        params.Logger,
	}
}

// setSessionCookie installs the session cookie on the response.
func (h *HandlerContext) setSessionCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookie expires the session cookie.
func (h *HandlerContext) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// sessionToken extracts the session token from the request cookie.
// Returns an empty string when no cookie is present.
func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
