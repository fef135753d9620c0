// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package ceremony

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JanssenProject/jans-authcore/pkg/config"
	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/logger"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/format"
)

const challengeLength = 32

// defaultAlgorithms is the negotiated algorithm list offered to
// authenticators, strongest first.
var defaultAlgorithms = []cose.Algorithm{cose.ES256, cose.RS256}

// RegistrationFlow orchestrates the FIDO2 attestation ceremony: challenge
// generation, format dispatch and credential persistence.
type RegistrationFlow struct {
	rp          config.RelyingParty
	challenges  ChallengeRepository
	credentials CredentialRepository
	anchors     TrustAnchorProvider
	log         *slog.Logger
	now         func() time.Time
}

// NewRegistrationFlow constructs a RegistrationFlow.
func NewRegistrationFlow(
	rp config.RelyingParty,
	challenges ChallengeRepository,
	credentials CredentialRepository,
	anchors TrustAnchorProvider,
) *RegistrationFlow {
	return &RegistrationFlow{
		rp:          rp,
		challenges:  challenges,
		credentials: credentials,
		anchors:     anchors,
		log:         logger.Get(),
		now:         time.Now,
	}
}

// newChallenge returns a fresh cryptographically random challenge in its
// base64url wire form.
func newChallenge() (string, error) {
	buf := make([]byte, challengeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.NewInternal("failed to generate challenge", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// BeginRegistration generates a challenge and a random user handle, persists
// the pending record, and returns the ceremony options. Previously
// registered credentials are listed in excludeCredentials so the
// authenticator refuses to re-register.
func (f *RegistrationFlow) BeginRegistration(ctx context.Context, username, displayName string) (*webauthn.CreationOptions, error) {
	if username == "" {
		return nil, errors.NewMalformedInput("username is required", nil)
	}

	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}
	userID := uuid.NewString()

	exclude, err := f.registeredCredentialDescriptors(ctx, username)
	if err != nil {
		return nil, err
	}

	challengeBytes, _ := base64.RawURLEncoding.DecodeString(challenge)
	opts := &webauthn.CreationOptions{
		Challenge: challengeBytes,
		RP: webauthn.RelyingPartyEntity{
			ID:   f.rp.ID,
			Name: f.rp.Name,
		},
		User: webauthn.UserEntity{
			ID:          []byte(userID),
			Name:        username,
			DisplayName: displayName,
		},
		PubKeyCredParams: credentialParameters(),
		AuthenticatorSelection: webauthn.AuthenticatorSelection{
			UserVerification: webauthn.UserVerification(f.rp.UserVerification),
		},
		ExcludeCredentials: exclude,
		Attestation:        "direct",
		Timeout:            f.rp.ChallengeTTL.Milliseconds(),
	}

	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, errors.NewInternal("failed to serialize creation options", err)
	}

	now := f.now()
	rec := &ChallengeRecord{
		Username:         username,
		UserID:           userID,
		Challenge:        challenge,
		Domain:           f.rp.ID,
		Type:             TypeRegistration,
		Status:           StatusPending,
		CreationOptions:  optsJSON,
		CreatedAt:        now,
		ExpiresAt:        now.Add(f.rp.ChallengeTTL),
		UserVerification: webauthn.UserVerification(f.rp.UserVerification),
	}
	if err := f.challenges.Save(ctx, rec); err != nil {
		return nil, errors.NewUpstream("failed to persist registration challenge", err)
	}

	f.log.Debug("registration challenge issued", "username", username, "rp_id", f.rp.ID)
	return opts, nil
}

// CompleteRegistration verifies an attestation response and, on success,
// persists the new credential. Any verification failure marks the challenge
// failed; the error carries the taxonomy code for the failure class.
func (f *RegistrationFlow) CompleteRegistration(ctx context.Context, resp *webauthn.RegistrationResponse) (*CredentialRecord, error) {
	clientData, err := webauthn.ParseClientData(resp.Response.ClientDataJSON)
	if err != nil {
		return nil, err
	}
	if clientData.Type != webauthn.ClientDataTypeCreate {
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

	result, err := f.verify(ctx, rec, resp)
	if err != nil {
		f.fail(ctx, challenge, err)
		return nil, err
	}

	cred, err := buildCredentialRecord(rec.Username, result)
	if err != nil {
		f.fail(ctx, challenge, err)
		return nil, err
	}

	// The atomic pending->registered transition is the commit point; a
	// concurrent completion of the same challenge loses here.
	if _, err := f.challenges.CompletePending(ctx, challenge, func(r *ChallengeRecord) error {
		r.Status = StatusRegistered
		r.PublicKeyID = cred.CredentialID
		r.UncompressedECPoint = cred.UncompressedECPoint
		r.SignatureAlgorithm = cred.SignatureAlgorithm
		r.AttestationType = cred.AttestationType
		r.Counter = cred.Counter
		return nil
	}); err != nil {
		return nil, err
	}

	if err := f.credentials.Save(ctx, cred); err != nil {
		return nil, errors.NewUpstream("failed to persist credential", err)
	}

	f.log.Info("credential registered",
		"username", rec.Username,
		"credential_id", cred.CredentialID,
		"attestation_type", cred.AttestationType)
	return cred, nil
}

// verify runs the format-dispatched attestation checks.
func (f *RegistrationFlow) verify(ctx context.Context, rec *ChallengeRecord, resp *webauthn.RegistrationResponse) (*format.Result, error) {
	attObj, err := webauthn.ParseAttestationObject(resp.Response.AttestationObject)
	if err != nil {
		return nil, err
	}

	processor, err := format.Resolve(attObj.Format)
	if err != nil {
		return nil, err
	}

	anchors, err := f.anchors.Certificates(ctx, attObj.AuthData)
	if err != nil {
		return nil, errors.NewUpstream("failed to load trust anchors", err)
	}

	clientDataHash := sha256.Sum256(resp.Response.ClientDataJSON)
	result, err := processor.Process(&format.Request{
		Statement:        attObj.RawStatement,
		AuthData:         attObj.AuthData,
		ClientDataHash:   clientDataHash[:],
		RPID:             rec.Domain,
		UserVerification: rec.UserVerification,
		TrustAnchors:     anchors,
		Now:              f.now,
	})
	if err != nil {
		logger.SecurityEvent("attestation rejected",
			"username", rec.Username,
			"format", attObj.Format,
			"code", errors.CodeOf(err))
		return nil, err
	}
	return result, nil
}

// fail marks the challenge failed. If the record already reached a terminal
// state the original verification error stands; the transition loss is only
// logged.
func (f *RegistrationFlow) fail(ctx context.Context, challenge string, cause error) {
	if _, err := f.challenges.CompletePending(ctx, challenge, func(r *ChallengeRecord) error {
		r.Status = StatusFailed
		return nil
	}); err != nil {
		f.log.Warn("could not mark challenge failed", "error", err, "cause", cause)
	}
}

// registeredCredentialDescriptors lists the user's registered credentials
// for the excludeCredentials / allowCredentials option lists.
func (f *RegistrationFlow) registeredCredentialDescriptors(ctx context.Context, username string) ([]webauthn.CredentialDescriptor, error) {
	records, err := f.challenges.FindAllByUsername(ctx, username)
	if err != nil {
		return nil, errors.NewUpstream("failed to list registered credentials", err)
	}
	return descriptorsFromRecords(records), nil
}

func descriptorsFromRecords(records []*ChallengeRecord) []webauthn.CredentialDescriptor {
	var out []webauthn.CredentialDescriptor
	for _, rec := range records {
		if rec.Status != StatusRegistered || rec.PublicKeyID == "" {
			continue
		}
		id, err := base64.RawURLEncoding.DecodeString(rec.PublicKeyID)
		if err != nil {
			continue
		}
		out = append(out, webauthn.CredentialDescriptor{Type: "public-key", ID: id})
	}
	return out
}

func credentialParameters() []webauthn.CredentialParameter {
	params := make([]webauthn.CredentialParameter, 0, len(defaultAlgorithms))
	for _, alg := range defaultAlgorithms {
		params = append(params, webauthn.CredentialParameter{Type: "public-key", Alg: alg})
	}
	return params
}

// buildCredentialRecord computes the stored credential fields from a
// verification result.
func buildCredentialRecord(username string, result *format.Result) (*CredentialRecord, error) {
	der, err := cose.MarshalPublicKey(result.PublicKey.Key)
	if err != nil {
		return nil, err
	}

	cred := &CredentialRecord{
		Username:           username,
		CredentialID:       base64.RawURLEncoding.EncodeToString(result.CredentialID),
		PublicKeyDER:       der,
		SignatureAlgorithm: result.Algorithm,
		AttestationType:    result.AttestationType,
		Counter:            result.SignCount,
	}
	if ecPub, ok := result.PublicKey.Key.(*ecdsa.PublicKey); ok {
		cred.UncompressedECPoint = cose.UncompressedECPoint(ecPub)
	}
	return cred, nil
}
