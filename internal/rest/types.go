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

// ErrorDetail carries a human-readable message and a machine-readable code.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ErrorResponse is the ceremony endpoints' error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// OIDCErrorResponse is the OAuth wire-format error envelope.
type OIDCErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// OptionsRequest is the body for both /auth/register/options and
// /auth/login/options.
type OptionsRequest struct {
	Username string `json:"username"`
}

// LoginOptionsResponse wraps credential options with the action the
// client must perform. Options holds either registration or
// authentication options depending on Action.
type LoginOptionsResponse struct {
	Action  string      `json:"action"`
	Options interface{} `json:"options"`
}

// UserResponse describes an authenticated user.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// VerifyResponse is returned after a successful register/login verify.
type VerifyResponse struct {
	User UserResponse `json:"user"`
}

// SessionResponse describes the current browser session.
type SessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *UserResponse `json:"user,omitempty"`
}

// MessageResponse is a generic acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}
