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

package ceremony

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations.
var (
	// ErrInvalidRequest is returned for malformed input, unknown or
	// consumed challenges, and failed verifications. The caller gets no
	// finer detail.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRegistrationClosed is returned when an unknown user attempts to
	// log in after the bootstrap window has closed.
	ErrRegistrationClosed = errors.New("registration closed")

	// ErrChallengeNotFound is returned when a challenge is unknown,
	// expired, or already consumed.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrNoCredentials is returned when a known user has no registered
	// credentials to authenticate with.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrVerificationFailed is returned when attestation or assertion
	// verification fails.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("ceremony service not configured")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CeremonyError{Op: op, Err: err}
}

// IsRegistrationClosed returns true if the error indicates the bootstrap
// window has closed.
func IsRegistrationClosed(err error) bool {
	return errors.Is(err, ErrRegistrationClosed)
}

// IsInvalidRequest returns true if the error maps to a generic bad request.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}
