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

// Package ceremony drives WebAuthn registration and authentication.
// Challenges are single-use: every verification attempt, successful or
// not, consumes the challenge it presents. The first user to complete
// registration becomes the administrator; once an administrator exists,
// unknown usernames can no longer self-register through the login flow.
package ceremony

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-idp/pkg/identity"
	"github.com/jeremyhahn/go-passkey-idp/pkg/session"
	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

// Username length bounds.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
)

// Action tells the client which ceremony the returned options belong to.
type Action string

const (
	ActionRegister     Action = "register"
	ActionAuthenticate Action = "authenticate"
)

// LoginOptions is the result of BeginLogin. Exactly one of Registration
// or Authentication is set, matching Action.
type LoginOptions struct {
	Action         Action
	Registration   *protocol.CredentialCreation
	Authentication *protocol.CredentialAssertion
}

// ServiceParams contains dependencies for creating a ceremony service.
type ServiceParams struct {
	// Config is the relying party configuration (required).
	Config *Config

	// Users is the user persistence layer (required).
	Users identity.UserRepository

	// Credentials is the credential persistence layer (required).
	Credentials identity.CredentialRepository

	// Challenges is the backend holding pending challenge state (required).
	Challenges storage.Backend

	// Sessions issues browser sessions after successful ceremonies (required).
	Sessions *session.Manager
}

// Service provides WebAuthn registration and authentication operations.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	users      identity.UserRepository
	creds      identity.CredentialRepository
	challenges *challengeStore
	sessions   *session.Manager
	configured bool
}

// NewService creates a new ceremony service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Credentials == nil {
		return nil, fmt.Errorf("credential repository is required")
	}
	if params.Challenges == nil {
		return nil, fmt.Errorf("challenge backend is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		users:      params.Users,
		creds:      params.Credentials,
		challenges: newChallengeStore(params.Challenges, params.Config.ChallengeTTL),
		sessions:   params.Sessions,
		configured: true,
	}, nil
}

// BeginRegistration starts a registration ceremony for a new username.
// The user row is not created here; a pending user ID is minted and
// carried in the challenge record until verification succeeds.
func (s *Service) BeginRegistration(ctx context.Context, username string) (*protocol.CredentialCreation, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return nil, WrapError("begin registration", ErrInvalidRequest)
	}
	if !identity.IsUserNotFound(err) {
		return nil, WrapError("get user by username", err)
	}

	user := newRelyingUser(uuid.New().String(), username, nil)
	options, waSession, err := s.webauthn.BeginRegistration(user)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	rec := &ChallengeRecord{
		Kind:          KindRegistration,
		Username:      username,
		PendingUserID: string(user.WebAuthnID()),
		Session:       *waSession,
	}
	if err := s.challenges.Save(rec); err != nil {
		return nil, WrapError("save challenge", err)
	}
	return options, nil
}

// FinishRegistration completes a registration ceremony. The challenge the
// attestation presents is consumed before anything else happens, so a
// failed verification still burns it. The first user created this way is
// the administrator.
func (s *Service) FinishRegistration(ctx context.Context, response *protocol.ParsedCredentialCreationData) (*identity.User, *session.Session, error) {
	if !s.configured {
		return nil, nil, ErrNotConfigured
	}

	rec, err := s.challenges.Take(response.Response.CollectedClientData.Challenge)
	if err != nil {
		return nil, nil, WrapError("consume challenge", ErrInvalidRequest)
	}
	if rec.Kind != KindRegistration {
		return nil, nil, WrapError("finish registration", ErrInvalidRequest)
	}

	user := newRelyingUser(rec.PendingUserID, rec.Username, nil)
	waCred, err := s.webauthn.CreateCredential(user, rec.Session, response)
	if err != nil {
		return nil, nil, WrapError("create credential", ErrVerificationFailed)
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return nil, nil, WrapError("count users", err)
	}

	account := &identity.User{
		ID:        rec.PendingUserID,
		Username:  rec.Username,
		IsAdmin:   count == 0,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Create(ctx, account); err != nil {
		if identity.IsUserNotFound(err) {
			return nil, nil, WrapError("create user", err)
		}
		// Username raced away between begin and finish.
		return nil, nil, WrapError("create user", ErrInvalidRequest)
	}

	stored := identity.FromWebAuthnCredential(account.ID, waCred)
	if err := s.creds.Save(ctx, stored); err != nil {
		return nil, nil, WrapError("save credential", err)
	}

	sess, err := s.sessions.Create(account.ID, account.Username, account.IsAdmin)
	if err != nil {
		return nil, nil, WrapError("create session", err)
	}
	return account, sess, nil
}

// BeginLogin starts an authentication ceremony for a username. Unknown
// usernames fall back to registration options while no administrator
// exists; after bootstrap they are rejected with ErrRegistrationClosed.
func (s *Service) BeginLogin(ctx context.Context, username string) (*LoginOptions, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	account, err := s.users.GetByUsername(ctx, username)
	if identity.IsUserNotFound(err) {
		adminExists, adminErr := s.users.AdminExists(ctx)
		if adminErr != nil {
			return nil, WrapError("check admin", adminErr)
		}
		if adminExists {
			return nil, ErrRegistrationClosed
		}
		options, regErr := s.BeginRegistration(ctx, username)
		if regErr != nil {
			return nil, regErr
		}
		return &LoginOptions{Action: ActionRegister, Registration: options}, nil
	}
	if err != nil {
		return nil, WrapError("get user by username", err)
	}

	creds, err := s.creds.GetByUserID(ctx, account.ID)
	if err != nil {
		return nil, WrapError("get credentials", err)
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	user := newRelyingUser(account.ID, account.Username, creds)
	options, waSession, err := s.webauthn.BeginLogin(user)
	if err != nil {
		return nil, WrapError("begin login", err)
	}

	rec := &ChallengeRecord{
		Kind:     KindAuthentication,
		Username: account.Username,
		UserID:   account.ID,
		Session:  *waSession,
	}
	if err := s.challenges.Save(rec); err != nil {
		return nil, WrapError("save challenge", err)
	}
	return &LoginOptions{Action: ActionAuthenticate, Authentication: options}, nil
}

// FinishLogin completes an authentication ceremony, updates the asserting
// credential's sign counter and issues a session.
func (s *Service) FinishLogin(ctx context.Context, response *protocol.ParsedCredentialAssertionData) (*identity.User, *session.Session, error) {
	if !s.configured {
		return nil, nil, ErrNotConfigured
	}

	rec, err := s.challenges.Take(response.Response.CollectedClientData.Challenge)
	if err != nil {
		return nil, nil, WrapError("consume challenge", ErrInvalidRequest)
	}
	if rec.Kind != KindAuthentication {
		return nil, nil, WrapError("finish login", ErrInvalidRequest)
	}

	account, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, nil, WrapError("get user", ErrInvalidRequest)
	}

	creds, err := s.creds.GetByUserID(ctx, account.ID)
	if err != nil {
		return nil, nil, WrapError("get credentials", err)
	}

	user := newRelyingUser(account.ID, account.Username, creds)
	waCred, err := s.webauthn.ValidateLogin(user, rec.Session, response)
	if err != nil {
		return nil, nil, WrapError("validate login", ErrVerificationFailed)
	}

	for _, cred := range creds {
		if !bytes.Equal(cred.ID, waCred.ID) {
			continue
		}
		cred.SignCount = waCred.Authenticator.SignCount
		cred.CloneWarning = waCred.Authenticator.CloneWarning
		cred.LastUsedAt = time.Now().UTC()
		if err := s.creds.Update(ctx, cred); err != nil {
			return nil, nil, WrapError("update credential", err)
		}
		break
	}

	sess, err := s.sessions.Create(account.ID, account.Username, account.IsAdmin)
	if err != nil {
		return nil, nil, WrapError("create session", err)
	}
	return account, sess, nil
}

// Credentials lists a user's registered credentials.
func (s *Service) Credentials(ctx context.Context, userID string) ([]*identity.Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	return s.creds.GetByUserID(ctx, userID)
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

func validateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return WrapError("validate username", ErrInvalidRequest)
	}
	return nil
}
