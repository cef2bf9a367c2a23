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

// Package rest exposes the identity provider over HTTP.
//
// The surface splits into three groups:
//
// WebAuthn ceremony endpoints, used by the login page:
//
//	POST /auth/register/options  begin a registration ceremony
//	POST /auth/register/verify   finish registration, sets the session cookie
//	POST /auth/login/options     begin an authentication ceremony
//	POST /auth/login/verify      finish authentication, sets the session cookie
//	POST /auth/logout            revoke the session, clears the cookie
//	GET  /auth/session           describe the current session
//
// OpenID Connect endpoints, used by relying parties:
//
//	GET  /.well-known/openid-configuration
//	GET  /.well-known/jwks.json
//	GET  /authorize
//	POST /token
//	GET  /userinfo
//
// Operational endpoints:
//
//	GET /health, /health/live, /health/ready, /health/startup
//	GET /metrics
//
// Ceremony endpoints report failures as {"error": {"message", "code"}}
// while OIDC endpoints use the OAuth wire format
// {"error", "error_description"}. The two vocabularies never mix.
package rest
