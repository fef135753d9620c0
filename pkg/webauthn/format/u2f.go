// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"crypto/ecdsa"

	"github.com/fxamacker/cbor/v2"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

func init() {
	Register(&u2fProcessor{})
}

// u2fStatement is the CBOR shape of a fido-u2f attStmt.
type u2fStatement struct {
	Signature  []byte   `cbor:"sig"`
	X5C        [][]byte `cbor:"x5c,omitempty"`
	ECDAAKeyID []byte   `cbor:"ecdaaKeyId,omitempty"`
}

// u2fProcessor handles the "fido-u2f" attestation format produced by CTAP1
// security keys.
//
// https://www.w3.org/TR/webauthn-3/#sctn-fido-u2f-attestation
type u2fProcessor struct{}

func (*u2fProcessor) Format() string {
	return "fido-u2f"
}

func (*u2fProcessor) Process(req *Request) (*Result, error) {
	var stmt u2fStatement
	if err := cbor.Unmarshal(req.Statement, &stmt); err != nil {
		return nil, errors.NewMalformedInput("fido-u2f attestation statement is not valid CBOR", err)
	}
	if len(stmt.Signature) == 0 {
		return nil, errors.NewMalformedInput("fido-u2f attestation statement is missing sig", nil)
	}

	// U2F predates AAGUIDs; a non-zero value means the authenticator is
	// lying about its provenance.
	if !req.AuthData.AAGUIDZero() {
		return nil, errors.NewCryptoFailure("fido-u2f attestation requires an all-zero AAGUID", nil)
	}
	if !req.AuthData.Flags.UserPresent() {
		return nil, errors.NewCryptoFailure("user not present", nil)
	}
	if err := req.AuthData.VerifyRPIDHash(req.RPID); err != nil {
		return nil, err
	}

	result, err := resultFromCredential(req, AttestationBasic)
	if err != nil {
		return nil, err
	}

	ecPub, ok := result.PublicKey.Key.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.NewMalformedInput("fido-u2f credential key is not an EC key", nil)
	}

	// U2F registration signature base:
	// 0x00 || rpIdHash || clientDataHash || credentialId || uncompressed point
	signedBytes := make([]byte, 0, 1+len(req.AuthData.RPIDHash)+len(req.ClientDataHash)+len(result.CredentialID)+65)
	signedBytes = append(signedBytes, 0x00)
	signedBytes = append(signedBytes, req.AuthData.RPIDHash...)
	signedBytes = append(signedBytes, req.ClientDataHash...)
	signedBytes = append(signedBytes, result.CredentialID...)
	signedBytes = append(signedBytes, cose.UncompressedECPoint(ecPub)...)

	switch {
	case len(stmt.X5C) > 0:
		chain, err := cose.ParseCertificates(stmt.X5C)
		if err != nil {
			return nil, err
		}
		leaf, err := cose.VerifyCertificateChain(chain, req.TrustAnchors)
		if err != nil {
			return nil, err
		}
		if err := cose.VerifySignature(leaf.PublicKey, cose.ES256, signedBytes, stmt.Signature); err != nil {
			return nil, err
		}
		result.AttestationCertificate = leaf
	case len(stmt.ECDAAKeyID) > 0:
		return nil, errors.NewUnsupported("ECDAA attestation is not supported", nil)
	default:
		// Surrogate attestation: self-signed with the credential key.
		if err := cose.VerifySignature(ecPub, cose.ES256, signedBytes, stmt.Signature); err != nil {
			return nil, err
		}
		result.AttestationType = AttestationSelf
	}

	return result, nil
}
