// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package webauthn

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

// Flags represents the authenticator data flag byte.
//
// https://www.w3.org/TR/webauthn-3/#authdata-flags
type Flags byte

// Flag bits.
const (
	flagUserPresent            = 1 << 0
	flagUserVerified           = 1 << 2
	flagAttestedCredentialData = 1 << 6
	flagExtensionData          = 1 << 7
)

// UserPresent reports whether the authenticator performed a successful user
// presence test.
func (f Flags) UserPresent() bool {
	return byte(f)&flagUserPresent != 0
}

// UserVerified reports whether the authenticator performed additional user
// authorization, such as a PIN entry or biometric check.
func (f Flags) UserVerified() bool {
	return byte(f)&flagUserVerified != 0
}

// HasAttestedCredentialData reports whether attested credential data follows
// the counter.
func (f Flags) HasAttestedCredentialData() bool {
	return byte(f)&flagAttestedCredentialData != 0
}

// HasExtensions reports whether extension data is present.
func (f Flags) HasExtensions() bool {
	return byte(f)&flagExtensionData != 0
}

// AttestedCredentialData is the optional credential block of authenticator
// data.
type AttestedCredentialData struct {
	AAGUID       [16]byte
	CredentialID []byte

	// RawPublicKey is the CBOR-encoded COSE key as delivered by the
	// authenticator; PublicKey is its decoded form.
	RawPublicKey []byte
	PublicKey    *cose.PublicKey
}

// AuthenticatorData is the parsed authenticator data structure.
//
// https://www.w3.org/TR/webauthn-3/#sctn-authenticator-data
type AuthenticatorData struct {
	// Raw is the exact byte sequence that was parsed; signature bases are
	// computed over it.
	Raw []byte

	RPIDHash  []byte
	Flags     Flags
	SignCount uint32

	AttestedCredentialData *AttestedCredentialData
	Extensions             []byte
}

// AAGUIDZero reports whether the attested credential AAGUID is all zero, as
// the fido-u2f format requires.
func (ad *AuthenticatorData) AAGUIDZero() bool {
	if ad.AttestedCredentialData == nil {
		return false
	}
	var acc byte
	for _, b := range ad.AttestedCredentialData.AAGUID {
		acc |= b
	}
	return acc == 0
}

// VerifyRPIDHash checks that the authenticator data was produced for the
// given relying party identifier.
func (ad *AuthenticatorData) VerifyRPIDHash(rpID string) error {
	want := sha256.Sum256([]byte(rpID))
	if !cose.ConstantTimeEqual(ad.RPIDHash, want[:]) {
		return errors.NewCryptoFailure("authenticator data was issued for a different relying party", nil)
	}
	return nil
}

// VerifyUserVerification enforces the ceremony user-verification policy
// against the authenticator flags.
func (ad *AuthenticatorData) VerifyUserVerification(policy UserVerification) error {
	switch policy {
	case UserVerificationRequired:
		if !ad.Flags.UserVerified() {
			return errors.NewCryptoFailure("user verification required but not performed", nil)
		}
	case UserVerificationPreferred, UserVerificationDiscouraged, "":
		// User presence is the floor for every policy.
	}
	if !ad.Flags.UserPresent() && !ad.Flags.UserVerified() {
		return errors.NewCryptoFailure("user not present", nil)
	}
	return nil
}

// ParseAuthenticatorData parses the binary authenticator data layout:
// rpIdHash (32) || flags (1) || signCount (4) || [attested credential data]
// || [extensions].
func ParseAuthenticatorData(b []byte) (*AuthenticatorData, error) {
	if len(b) < 37 {
		return nil, errors.NewMalformedInput("authenticator data is truncated", nil)
	}

	ad := &AuthenticatorData{
		Raw:       b,
		RPIDHash:  b[:32],
		Flags:     Flags(b[32]),
		SignCount: binary.BigEndian.Uint32(b[33:37]),
	}
	rest := b[37:]

	if ad.Flags.HasAttestedCredentialData() {
		acd, remaining, err := parseAttestedCredentialData(rest)
		if err != nil {
			return nil, err
		}
		ad.AttestedCredentialData = acd
		rest = remaining
	} else if len(rest) > 0 && !ad.Flags.HasExtensions() {
		return nil, errors.NewMalformedInput("unexpected trailing bytes in authenticator data", nil)
	}

	if ad.Flags.HasExtensions() {
		if len(rest) == 0 {
			return nil, errors.NewMalformedInput("extension flag set but no extension data present", nil)
		}
		ad.Extensions = rest
	}

	return ad, nil
}

func parseAttestedCredentialData(b []byte) (*AttestedCredentialData, []byte, error) {
	if len(b) < 18 {
		return nil, nil, errors.NewMalformedInput("attested credential data is truncated", nil)
	}

	acd := &AttestedCredentialData{}
	copy(acd.AAGUID[:], b[:16])

	credIDLen := int(binary.BigEndian.Uint16(b[16:18]))
	b = b[18:]
	if len(b) < credIDLen {
		return nil, nil, errors.NewMalformedInput("credential id is truncated", nil)
	}
	acd.CredentialID = b[:credIDLen]
	b = b[credIDLen:]

	// The COSE key is a CBOR item of unknown length; decode once to find
	// the boundary, then decode the prefix into the key structure.
	var raw cbor.RawMessage
	rest, err := cbor.UnmarshalFirst(b, &raw)
	if err != nil {
		return nil, nil, errors.NewMalformedInput("attested credential public key is not valid CBOR", err)
	}
	acd.RawPublicKey = []byte(raw)

	pub, err := cose.DecodePublicKey(acd.RawPublicKey)
	if err != nil {
		return nil, nil, err
	}
	acd.PublicKey = pub

	return acd, rest, nil
}
