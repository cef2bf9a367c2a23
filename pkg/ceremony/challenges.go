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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

const challengeKeyPrefix = "challenge:"

// ChallengeKind discriminates what ceremony a challenge was issued for.
// A registration challenge can never complete a login and vice versa.
type ChallengeKind string

const (
	KindRegistration   ChallengeKind = "registration"
	KindAuthentication ChallengeKind = "authentication"
)

// ChallengeRecord is the server-side state bound to an issued challenge.
// It is keyed by the challenge value itself, which the client echoes back
// inside the signed clientDataJSON.
type ChallengeRecord struct {
	// Kind is the ceremony this challenge belongs to.
	Kind ChallengeKind `json:"kind"`

	// Username is the login name the ceremony was started for.
	Username string `json:"username"`

	// PendingUserID is the user ID minted at registration start. The
	// user row does not exist until verification succeeds.
	PendingUserID string `json:"pending_user_id,omitempty"`

	// UserID is the existing user's ID for authentication challenges.
	UserID string `json:"user_id,omitempty"`

	// Session is the go-webauthn ceremony state.
	Session webauthn.SessionData `json:"session"`

	// CreatedAt is when the challenge was issued.
	CreatedAt time.Time `json:"created_at"`
}

// challengeStore persists challenge records with a TTL and single-use
// consumption semantics.
type challengeStore struct {
	backend storage.Backend
	ttl     time.Duration
	now     func() time.Time
}

func newChallengeStore(backend storage.Backend, ttl time.Duration) *challengeStore {
	return &challengeStore{backend: backend, ttl: ttl, now: time.Now}
}

// Save stores a record keyed by its challenge value.
func (s *challengeStore) Save(rec *ChallengeRecord) error {
	rec.CreatedAt = s.now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	key := challengeKeyPrefix + rec.Session.Challenge
	if err := s.backend.Put(key, data, storage.WithTTL(s.ttl)); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// Take atomically consumes a challenge. A second Take for the same value
// fails, regardless of whether the first verification succeeded. The
// wall-clock check backs up backends without native TTL support.
func (s *challengeStore) Take(challenge string) (*ChallengeRecord, error) {
	if challenge == "" {
		return nil, ErrChallengeNotFound
	}

	data, err := s.backend.Take(challengeKeyPrefix + challenge)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("consume challenge: %w", err)
	}

	var rec ChallengeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	if s.now().Sub(rec.CreatedAt) >= s.ttl {
		return nil, ErrChallengeNotFound
	}
	return &rec, nil
}
