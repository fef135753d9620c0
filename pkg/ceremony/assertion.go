// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package ceremony

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/JanssenProject/jans-authcore/pkg/config"
	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/logger"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

// AuthenticationResult is the outcome of a successful assertion ceremony.
type AuthenticationResult struct {
	Username     string
	CredentialID string
	SignCount    uint32
	UserVerified bool
}

// AssertionFlow orchestrates the FIDO2 assertion (authentication) ceremony.
type AssertionFlow struct {
	rp          config.RelyingParty
	challenges  ChallengeRepository
	credentials CredentialRepository
	log         *slog.Logger
	now         func() time.Time
}

// NewAssertionFlow constructs an AssertionFlow.
func NewAssertionFlow(
	rp config.RelyingParty,
	challenges ChallengeRepository,
	credentials CredentialRepository,
) *AssertionFlow {
	return &AssertionFlow{
		rp:          rp,
		challenges:  challenges,
		credentials: credentials,
		log:         logger.Get(),
		now:         time.Now,
	}
}

// BeginAssertion generates a challenge against the user's registered
// credentials. A user with no registered credentials is rejected.
func (f *AssertionFlow) BeginAssertion(ctx context.Context, username string) (*webauthn.RequestOptions, error) {
	if username == "" {
		return nil, errors.NewMalformedInput("username is required", nil)
	}

	records, err := f.challenges.FindAllByUsername(ctx, username)
	if err != nil {
		return nil, errors.NewUpstream("failed to list registered credentials", err)
	}
	allowed := descriptorsFromRecords(records)
	if len(allowed) == 0 {
		return nil, errors.NewNoCredentials(
			fmt.Sprintf("no registered credentials for user %q", username), nil)
	}

	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}

	challengeBytes, _ := base64.RawURLEncoding.DecodeString(challenge)
	opts := &webauthn.RequestOptions{
		Challenge:        challengeBytes,
		RPID:             f.rp.ID,
		AllowCredentials: allowed,
		UserVerification: webauthn.UserVerification(f.rp.UserVerification),
		Timeout:          f.rp.ChallengeTTL.Milliseconds(),
	}

	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, errors.NewInternal("failed to serialize request options", err)
	}

	now := f.now()
	rec := &ChallengeRecord{
		Username:         username,
		Challenge:        challenge,
		Domain:           f.rp.ID,
		Type:             TypeAssertion,
		Status:           StatusPending,
		CreationOptions:  optsJSON,
		CreatedAt:        now,
		ExpiresAt:        now.Add(f.rp.ChallengeTTL),
		UserVerification: webauthn.UserVerification(f.rp.UserVerification),
	}
	if err := f.challenges.Save(ctx, rec); err != nil {
		return nil, errors.NewUpstream("failed to persist assertion challenge", err)
	}

	f.log.Debug("assertion challenge issued", "username", username, "rp_id", f.rp.ID)
	return opts, nil
}

// CompleteAssertion verifies an assertion response: client data type, origin
// and challenge, credential ownership, relying party binding,
// user-verification policy, the signature over
// authenticatorData || clientDataHash, and signature counter monotonicity.
// The stored counter advances on success.
func (f *AssertionFlow) CompleteAssertion(ctx context.Context, resp *webauthn.AssertionResponse) (*AuthenticationResult, error) {
	clientData, err := webauthn.ParseClientData(resp.Response.ClientDataJSON)
	if err != nil {
		return nil, err
	}
	if clientData.Type != webauthn.ClientDataTypeGet {
		return nil, errors.NewMalformedInput(
			fmt.Sprintf("unexpected client data type %q", clientData.Type), nil)
	}
	if clientData.Origin != f.rp.Origin {
		return nil, errors.NewCryptoFailure(
			fmt.Sprintf("client data origin %q does not match %q", clientData.Origin, f.rp.Origin), nil)
	}

	challenge := clientData.Challenge.String()
	rec, err := f.challenges.FindPendingByChallenge(ctx, challenge)
	if err != nil {
		return nil, err
	}

	credentialID := base64.RawURLEncoding.EncodeToString(resp.RawID)
	cred, err := f.credentials.FindByPublicKeyID(ctx, credentialID)
	if err != nil {
		f.fail(ctx, challenge)
		return nil, errors.NewMalformedInput("assertion references an unknown credential", err)
	}

	// The challenge was issued against the user's own credentials; an
	// assertion answered with someone else's credential must not
	// authenticate as the challenged user.
	if cred.Username != rec.Username {
		err := errors.NewCryptoFailure("assertion credential is registered to a different user", nil)
		f.securityEvent(rec, cred, err)
		f.fail(ctx, challenge)
		return nil, err
	}

	authData, err := f.verify(rec, cred, resp)
	if err != nil {
		f.fail(ctx, challenge)
		return nil, err
	}

	if _, err := f.challenges.CompletePending(ctx, challenge, func(r *ChallengeRecord) error {
		r.Status = StatusAuthenticated
		r.PublicKeyID = credentialID
		r.Counter = authData.SignCount
		return nil
	}); err != nil {
		return nil, err
	}

	cred.Counter = authData.SignCount
	if err := f.credentials.Update(ctx, cred); err != nil {
		return nil, errors.NewUpstream("failed to persist credential counter", err)
	}

	f.log.Info("assertion verified",
		"username", rec.Username,
		"credential_id", credentialID,
		"sign_count", authData.SignCount)
	return &AuthenticationResult{
		Username:     rec.Username,
		CredentialID: credentialID,
		SignCount:    authData.SignCount,
		UserVerified: authData.Flags.UserVerified(),
	}, nil
}

func (f *AssertionFlow) verify(rec *ChallengeRecord, cred *CredentialRecord, resp *webauthn.AssertionResponse) (*webauthn.AuthenticatorData, error) {
	authData, err := webauthn.ParseAuthenticatorData(resp.Response.AuthenticatorData)
	if err != nil {
		return nil, err
	}
	if err := authData.VerifyRPIDHash(rec.Domain); err != nil {
		f.securityEvent(rec, cred, err)
		return nil, err
	}
	if err := authData.VerifyUserVerification(rec.UserVerification); err != nil {
		f.securityEvent(rec, cred, err)
		return nil, err
	}

	pub, err := cose.ParsePublicKey(cred.PublicKeyDER)
	if err != nil {
		return nil, err
	}

	clientDataHash := sha256.Sum256(resp.Response.ClientDataJSON)
	signedBytes := append(append([]byte{}, resp.Response.AuthenticatorData...), clientDataHash[:]...)
	if err := cose.VerifySignature(pub, cred.SignatureAlgorithm, signedBytes, resp.Response.Signature); err != nil {
		f.securityEvent(rec, cred, err)
		return nil, err
	}

	if err := verifyCounter(cred.Counter, authData.SignCount); err != nil {
		f.securityEvent(rec, cred, err)
		return nil, err
	}

	return authData, nil
}

// verifyCounter enforces signature counter monotonicity. Devices without
// counter support report zero on every assertion; the check is skipped only
// when both sides are zero.
func verifyCounter(stored, presented uint32) error {
	if stored == 0 && presented == 0 {
		return nil
	}
	if presented <= stored {
		return errors.NewCounterReplay(
			fmt.Sprintf("signature counter did not increase (stored %d, presented %d)", stored, presented), nil)
	}
	return nil
}

func (f *AssertionFlow) fail(ctx context.Context, challenge string) {
	if _, err := f.challenges.CompletePending(ctx, challenge, func(r *ChallengeRecord) error {
		r.Status = StatusFailed
		return nil
	}); err != nil {
		f.log.Warn("could not mark challenge failed", "error", err)
	}
}

func (f *AssertionFlow) securityEvent(rec *ChallengeRecord, cred *CredentialRecord, err error) {
	logger.SecurityEvent("assertion rejected",
		"username", rec.Username,
		"credential_id", cred.CredentialID,
		"code", errors.CodeOf(err))
}
