// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

// Package ceremony implements the FIDO2 registration and assertion state
// machines. A challenge record moves from pending to exactly one terminal
// state; the persistence collaborators own storage, expiry and deletion.
package ceremony

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"time"

	"github.com/JanssenProject/jans-authcore/pkg/webauthn"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

// Type identifies which ceremony a challenge record belongs to.
type Type string

// Ceremony types.
const (
	TypeRegistration Type = "registration"
	TypeAssertion    Type = "assertion"
)

// Status is the lifecycle state of a challenge record.
type Status string

// Challenge statuses. Terminal states are final; no further transitions are
// accepted for a record once it leaves pending.
const (
	StatusPending       Status = "pending"
	StatusRegistered    Status = "registered"
	StatusAuthenticated Status = "authenticated"
	StatusFailed        Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// ChallengeRecord is one pending or resolved ceremony.
type ChallengeRecord struct {
	Username string
	UserID   string

	// Challenge is the base64url nonce issued at options time. Unique
	// within the active window.
	Challenge string

	// Domain is the relying party identifier the challenge was issued for.
	Domain string

	Type   Type
	Status Status

	// CreationOptions is the serialized ceremony options document returned
	// to the client.
	CreationOptions json.RawMessage

	CreatedAt time.Time
	ExpiresAt time.Time

	// UserVerification is the policy negotiated at options time.
	UserVerification webauthn.UserVerification

	// Credential fields, populated when a registration reaches the
	// registered state. A registered record doubles as the user's
	// credential listing entry.
	PublicKeyID         string
	UncompressedECPoint []byte
	SignatureAlgorithm  cose.Algorithm
	AttestationType     string
	Counter             uint32
}

// CredentialRecord is the credential state the core computes; persistence is
// owned by the collaborator behind CredentialRepository.
type CredentialRecord struct {
	Username     string
	CredentialID string

	// PublicKeyDER is the PKIX encoding of the credential public key,
	// usable for every key type. UncompressedECPoint additionally holds
	// the SEC1 point for EC credentials, which the U2F verification path
	// needs verbatim.
	PublicKeyDER        []byte
	UncompressedECPoint []byte

	SignatureAlgorithm cose.Algorithm
	AttestationType    string

	// Counter is the signature counter, monotonically non-decreasing.
	Counter uint32
}

// ChallengeRepository is the persistence collaborator for challenge records.
type ChallengeRepository interface {
	// FindPendingByChallenge resolves the single non-expired pending
	// record for the challenge value. A missing, expired or already
	// resolved challenge yields a challenge_not_pending error.
	FindPendingByChallenge(ctx context.Context, challenge string) (*ChallengeRecord, error)

	// FindAllByUsername returns every record for the user, any status.
	FindAllByUsername(ctx context.Context, username string) ([]*ChallengeRecord, error)

	// Save persists a new record.
	Save(ctx context.Context, rec *ChallengeRecord) error

	// CompletePending atomically transitions the pending record for the
	// challenge value to a terminal state, applying mutate to it under
	// the same atomicity guarantee. If the record is not pending anymore,
	// a challenge_not_pending error is returned and mutate is not
	// applied. This is the commit point that makes pending->terminal
	// happen at most once.
	CompletePending(ctx context.Context, challenge string, mutate func(*ChallengeRecord) error) (*ChallengeRecord, error)
}

// CredentialRepository is the persistence collaborator for credentials.
type CredentialRepository interface {
	FindByPublicKeyID(ctx context.Context, id string) (*CredentialRecord, error)
	Save(ctx context.Context, rec *CredentialRecord) error
	Update(ctx context.Context, rec *CredentialRecord) error
}

// TrustAnchorProvider resolves the trust roots for an authenticator, usually
// per AAGUID or per vendor.
type TrustAnchorProvider interface {
	Certificates(ctx context.Context, authData *webauthn.AuthenticatorData) ([]*x509.Certificate, error)
}
