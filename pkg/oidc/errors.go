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
	"errors"
	"fmt"
)

// Sentinel errors mirroring the OAuth 2.0 / OIDC wire error codes.
var (
	// ErrInvalidRequest covers malformed or missing parameters.
	ErrInvalidRequest = errors.New("invalid_request")

	// ErrInvalidClient is returned for unknown OIDC clients.
	ErrInvalidClient = errors.New("invalid_client")

	// ErrInvalidGrant is returned for bad, expired, consumed or
	// mismatched authorization codes.
	ErrInvalidGrant = errors.New("invalid_grant")

	// ErrUnsupportedGrantType is returned for any grant type other than
	// authorization_code.
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")

	// ErrInvalidToken is returned for bad, expired or malformed bearer
	// tokens at the userinfo endpoint.
	ErrInvalidToken = errors.New("invalid_token")

	// ErrServerError is returned when signing keys or storage are
	// unavailable.
	ErrServerError = errors.New("server_error")
)

// OIDCError wraps a sentinel with the operation that produced it and an
// optional human-readable description for the error_description field.
type OIDCError struct {
	Op          string
	Err         error
	Description string
}

// Error returns the error message.
func (e *OIDCError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *OIDCError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *OIDCError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapError wraps a sentinel with an operation name.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OIDCError{Op: op, Err: err}
}

// Describe wraps a sentinel with a wire-visible description.
func Describe(err error, description string) error {
	return &OIDCError{Err: err, Description: description}
}

// WireCode maps an error to its OAuth wire error code. Unknown errors
// collapse to server_error.
func WireCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInvalidClient):
		return "invalid_client"
	case errors.Is(err, ErrInvalidGrant):
		return "invalid_grant"
	case errors.Is(err, ErrUnsupportedGrantType):
		return "unsupported_grant_type"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	default:
		return "server_error"
	}
}

// WireDescription extracts the wire-visible description, if any.
func WireDescription(err error) string {
	var oe *OIDCError
	if errors.As(err, &oe) {
		return oe.Description
	}
	return ""
}
