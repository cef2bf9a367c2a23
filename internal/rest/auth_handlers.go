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
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-passkey-idp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-idp/pkg/identity"
	"github.com/jeremyhahn/go-passkey-idp/pkg/metrics"
)

// RegisterOptionsHandler handles POST /auth/register/options requests.
// It begins a registration ceremony for a new username.
func (h *HandlerContext) RegisterOptionsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req OptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordOperation(metrics.OpRegisterBegin, "error", time.Since(start).Seconds())
		writeAuthError(w, "invalid request body", CodeInvalidRequest, http.StatusBadRequest)
		return
	}

	options, err := h.ceremony.BeginRegistration(r.Context(), req.Username)
	if err != nil {
		metrics.RecordOperation(metrics.OpRegisterBegin, "error", time.Since(start).Seconds())
		handleCeremonyError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpRegisterBegin, "success", time.Since(start).Seconds())
	writeJSON(w, options, http.StatusOK)
}

// RegisterVerifyHandler handles POST /auth/register/verify requests.
// On success the user account is created and a session cookie is set.
func (h *HandlerContext) RegisterVerifyHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		metrics.RecordOperation(metrics.OpRegisterFinish, "error", time.Since(start).Seconds())
		writeAuthError(w, "invalid attestation response", CodeInvalidRequest, http.StatusBadRequest)
		return
	}

	user, sess, err := h.ceremony.FinishRegistration(r.Context(), response)
	if err != nil {
		metrics.RecordOperation(metrics.OpRegisterFinish, "error", time.Since(start).Seconds())
		handleCeremonyError(w, err)
		return
	}

	h.logger.Info("User registered",
		logger.String("username", user.Username),
		logger.Bool("admin", user.IsAdmin))

	h.setSessionCookie(w, sess)
	metrics.RecordOperation(metrics.OpRegisterFinish, "success", time.Since(start).Seconds())
	writeJSON(w, verifyResponse(user), http.StatusOK)
}

// LoginOptionsHandler handles POST /auth/login/options requests. Known
// usernames get assertion options; unknown usernames fall back to
// registration options while no administrator exists.
func (h *HandlerContext) LoginOptionsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req OptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordOperation(metrics.OpLoginBegin, "error", time.Since(start).Seconds())
		writeAuthError(w, "invalid request body", CodeInvalidRequest, http.StatusBadRequest)
		return
	}

	options, err := h.ceremony.BeginLogin(r.Context(), req.Username)
	if err != nil {
		metrics.RecordOperation(metrics.OpLoginBegin, "error", time.Since(start).Seconds())
		handleCeremonyError(w, err)
		return
	}

	resp := LoginOptionsResponse{Action: string(options.Action)}
	if options.Registration != nil {
		resp.Options = options.Registration
	} else {
		resp.Options = options.Authentication
	}

	metrics.RecordOperation(metrics.OpLoginBegin, "success", time.Since(start).Seconds())
	writeJSON(w, resp, http.StatusOK)
}

// LoginVerifyHandler handles POST /auth/login/verify requests. On
// success a session cookie is set.
func (h *HandlerContext) LoginVerifyHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		metrics.RecordOperation(metrics.OpLoginFinish, "error", time.Since(start).Seconds())
		writeAuthError(w, "invalid assertion response", CodeInvalidRequest, http.StatusBadRequest)
		return
	}

	user, sess, err := h.ceremony.FinishLogin(r.Context(), response)
	if err != nil {
		metrics.RecordOperation(metrics.OpLoginFinish, "error", time.Since(start).Seconds())
		handleCeremonyError(w, err)
		return
	}

	h.logger.Info("User authenticated", logger.String("username", user.Username))

	h.setSessionCookie(w, sess)
	metrics.RecordOperation(metrics.OpLoginFinish, "success", time.Since(start).Seconds())
	writeJSON(w, verifyResponse(user), http.StatusOK)
}

// LogoutHandler handles POST /auth/logout requests. Revocation is
// idempotent; logging out without a session still succeeds.
func (h *HandlerContext) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.sessions.Revoke(token); err != nil {
			h.logger.Warn("Failed to revoke session", logger.Error(err))
		}
	}
	h.clearSessionCookie(w)
	writeJSON(w, MessageResponse{Message: "Logged out"}, http.StatusOK)
}

// SessionHandler handles GET /auth/session requests, describing the
// current browser session.
func (h *HandlerContext) SessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Validate(sessionToken(r))
	if err != nil {
		writeJSON(w, SessionResponse{Authenticated: false}, http.StatusOK)
		return
	}
	writeJSON(w, SessionResponse{
		Authenticated: true,
		User: &UserResponse{
			ID:       sess.UserID,
			Username: sess.Username,
			IsAdmin:  sess.IsAdmin,
		},
	}, http.StatusOK)
}

func verifyResponse(user *identity.User) VerifyResponse {
	return VerifyResponse{
		User: UserResponse{
			ID:       user.ID,
			Username: user.Username,
			IsAdmin:  user.IsAdmin,
		},
	}
}
