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
	"errors"
	"net/http"

	"github.com/jeremyhahn/go-passkey-idp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-idp/pkg/ceremony"
	"github.com/jeremyhahn/go-passkey-idp/pkg/oidc"
)

// encodeLog reports response-encoding failures. By the time encoding
// fails the status line is already written, so logging is all that is
// left to do.
var encodeLog logger.Logger = logger.NewSlogAdapter(nil)

// Machine-readable codes for the ceremony error vocabulary.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeRegistrationClosed = "REGISTRATION_CLOSED"
	CodeNoCredentials      = "NO_CREDENTIALS"
	CodeVerificationFailed = "VERIFICATION_FAILED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		encodeLog.Error("Failed to encode JSON response", logger.Error(err))
	}
}

// writeAuthError writes a ceremony-vocabulary error response.
func writeAuthError(w http.ResponseWriter, message, code string, statusCode int) {
	writeJSON(w, ErrorResponse{
		Error: ErrorDetail{Message: message, Code: code},
	}, statusCode)
}

// handleCeremonyError maps a ceremony error to the auth error vocabulary.
func handleCeremonyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ceremony.ErrRegistrationClosed):
		writeAuthError(w, "registration is closed", CodeRegistrationClosed, http.StatusForbidden)
	case errors.Is(err, ceremony.ErrNoCredentials):
		writeAuthError(w, "no credentials registered for this user", CodeNoCredentials, http.StatusBadRequest)
	case errors.Is(err, ceremony.ErrVerificationFailed):
		writeAuthError(w, "credential verification failed", CodeVerificationFailed, http.StatusBadRequest)
	case errors.Is(err, ceremony.ErrChallengeNotFound),
		errors.Is(err, ceremony.ErrInvalidRequest):
		writeAuthError(w, "invalid request", CodeInvalidRequest, http.StatusBadRequest)
	default:
		writeAuthError(w, "internal server error", CodeInternalError, http.StatusInternalServerError)
	}
}

// writeOIDCError writes an OAuth wire-format error response.
func writeOIDCError(w http.ResponseWriter, err error) {
	code := oidc.WireCode(err)
	statusCode := oidcStatusCode(code)

	if code == "invalid_token" {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}

	resp := OIDCErrorResponse{Error: code}
	if desc := oidc.WireDescription(err); desc != "" {
		resp.ErrorDescription = desc
	}
	writeJSON(w, resp, statusCode)
}

// oidcStatusCode maps OAuth wire error codes to HTTP status codes.
func oidcStatusCode(code string) int {
	switch code {
	case "invalid_client", "invalid_token":
		return http.StatusUnauthorized
	case "invalid_request", "invalid_grant", "unsupported_grant_type":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
