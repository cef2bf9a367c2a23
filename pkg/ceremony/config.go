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
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Config configures the WebAuthn relying party.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "idp.example.com"
	RPID string `yaml:"id" json:"id" mapstructure:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	RPDisplayName string `yaml:"display_name" json:"display_name" mapstructure:"display_name"`

	// RPOrigins are the allowed origins for WebAuthn operations.
	RPOrigins []string `yaml:"origins" json:"origins" mapstructure:"origins"`

	// Timeout is the timeout for WebAuthn ceremonies.
	// Default: 60 seconds
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`

	// ChallengeTTL is how long an issued challenge remains valid.
	// Default: 300 seconds
	ChallengeTTL time.Duration `yaml:"challenge_ttl" json:"challenge_ttl" mapstructure:"challenge_ttl"`

	// UserVerification specifies the user verification requirement.
	// Options: "required", "preferred", "discouraged"
	// Default: "preferred"
	UserVerification string `yaml:"user_verification" json:"user_verification" mapstructure:"user_verification"`

	// AttestationPreference specifies the attestation conveyance preference.
	// Options: "none", "indirect", "direct", "enterprise"
	// Default: "none"
	AttestationPreference string `yaml:"attestation" json:"attestation" mapstructure:"attestation"`

	// ResidentKeyRequirement specifies whether to require resident keys.
	// Options: "required", "preferred", "discouraged"
	// Default: "preferred"
	ResidentKeyRequirement string `yaml:"resident_key" json:"resident_key" mapstructure:"resident_key"`

	// Debug enables debug logging in the underlying library.
	Debug bool `yaml:"debug" json:"debug" mapstructure:"debug"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one RPOrigin is required")
	}

	switch c.UserVerification {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid user verification: %s", c.UserVerification)
	}

	switch c.AttestationPreference {
	case "", "none", "indirect", "direct", "enterprise":
	default:
		return fmt.Errorf("invalid attestation preference: %s", c.AttestationPreference)
	}

	switch c.ResidentKeyRequirement {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid resident key requirement: %s", c.ResidentKeyRequirement)
	}

	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = 300 * time.Second
	}
	if c.UserVerification == "" {
		c.UserVerification = "preferred"
	}
	if c.AttestationPreference == "" {
		c.AttestationPreference = "none"
	}
	if c.ResidentKeyRequirement == "" {
		c.ResidentKeyRequirement = "preferred"
	}
}

// ToWebAuthnConfig converts the Config to the go-webauthn library's configuration.
func (c *Config) ToWebAuthnConfig() *webauthn.Config {
	cfg := &webauthn.Config{
		RPID:          c.RPID,
		RPDisplayName: c.RPDisplayName,
		RPOrigins:     c.RPOrigins,
		Debug:         c.Debug,
	}

	if c.Timeout > 0 {
		cfg.Timeouts = webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
		}
	}

	switch c.AttestationPreference {
	case "none":
		cfg.AttestationPreference = protocol.PreferNoAttestation
	case "indirect":
		cfg.AttestationPreference = protocol.PreferIndirectAttestation
	case "direct":
		cfg.AttestationPreference = protocol.PreferDirectAttestation
	case "enterprise":
		cfg.AttestationPreference = protocol.PreferEnterpriseAttestation
	}

	cfg.AuthenticatorSelection = protocol.AuthenticatorSelection{}

	switch c.UserVerification {
	case "required":
		cfg.AuthenticatorSelection.UserVerification = protocol.VerificationRequired
	case "preferred":
		cfg.AuthenticatorSelection.UserVerification = protocol.VerificationPreferred
	case "discouraged":
		cfg.AuthenticatorSelection.UserVerification = protocol.VerificationDiscouraged
	}

	switch c.ResidentKeyRequirement {
	case "required":
		cfg.AuthenticatorSelection.ResidentKey = protocol.ResidentKeyRequirementRequired
	case "preferred":
		cfg.AuthenticatorSelection.ResidentKey = protocol.ResidentKeyRequirementPreferred
	case "discouraged":
		cfg.AuthenticatorSelection.ResidentKey = protocol.ResidentKeyRequirementDiscouraged
	}

	return cfg
}
