// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"crypto/x509"
	"encoding/asn1"

	"github.com/fxamacker/cbor/v2"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

// Android key attestation extension.
//
// https://source.android.com/docs/security/features/keystore/attestation
var idAndroidKeyAttestation = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

func init() {
	Register(&androidKeyProcessor{})
}

// androidKeyStatement is the CBOR shape of an android-key attStmt.
type androidKeyStatement struct {
	Algorithm int64    `cbor:"alg"`
	Signature []byte   `cbor:"sig"`
	X5C       [][]byte `cbor:"x5c"`
}

// keyDescription is the leading portion of the Android KeyDescription ASN.1
// sequence. Only the attestation challenge participates in verification; the
// authorization lists are left raw.
type keyDescription struct {
	AttestationVersion       int
	AttestationSecurityLevel asn1.Enumerated
	KeymasterVersion         int
	KeymasterSecurityLevel   asn1.Enumerated
	AttestationChallenge     []byte
	UniqueID                 []byte
	SoftwareEnforced         asn1.RawValue
	TeeEnforced              asn1.RawValue
}

// androidKeyProcessor handles the "android-key" attestation format produced
// by hardware-backed Android keystores.
//
// https://www.w3.org/TR/webauthn-3/#sctn-android-key-attestation
type androidKeyProcessor struct{}

func (*androidKeyProcessor) Format() string {
	return "android-key"
}

func (*androidKeyProcessor) Process(req *Request) (*Result, error) {
	var stmt androidKeyStatement
	if err := cbor.Unmarshal(req.Statement, &stmt); err != nil {
		return nil, errors.NewMalformedInput("android-key attestation statement is not valid CBOR", err)
	}
	if len(stmt.Signature) == 0 || len(stmt.X5C) == 0 {
		return nil, errors.NewMalformedInput("android-key attestation statement is missing sig or x5c", nil)
	}

	if err := req.AuthData.VerifyRPIDHash(req.RPID); err != nil {
		return nil, err
	}
	if err := req.AuthData.VerifyUserVerification(req.UserVerification); err != nil {
		return nil, err
	}

	chain, err := cose.ParseCertificates(stmt.X5C)
	if err != nil {
		return nil, err
	}
	leaf, err := cose.VerifyCertificateChain(chain, req.TrustAnchors)
	if err != nil {
		return nil, err
	}

	// The certificate's embedded attestation challenge must be exactly the
	// client data hash; a mismatch means the key was minted for a
	// different ceremony.
	desc, err := parseKeyDescription(leaf)
	if err != nil {
		return nil, err
	}
	if !cose.ConstantTimeEqual(desc.AttestationChallenge, req.ClientDataHash) {
		return nil, errors.NewCryptoFailure("android-key attestation challenge does not match client data hash", nil)
	}

	signedBytes := append(append([]byte{}, req.AuthData.Raw...), req.ClientDataHash...)
	if err := cose.VerifySignature(leaf.PublicKey, cose.Algorithm(stmt.Algorithm), signedBytes, stmt.Signature); err != nil {
		return nil, err
	}

	result, err := resultFromCredential(req, AttestationBasic)
	if err != nil {
		return nil, err
	}
	result.AttestationCertificate = leaf
	return result, nil
}

func parseKeyDescription(leaf *x509.Certificate) (*keyDescription, error) {
	var extValue []byte
	for _, ext := range leaf.Extensions {
		if ext.Id.Equal(idAndroidKeyAttestation) {
			extValue = ext.Value
			break
		}
	}
	if len(extValue) == 0 {
		return nil, errors.NewCryptoFailure("android-key certificate has no attestation extension", nil)
	}

	var desc keyDescription
	if _, err := asn1.Unmarshal(extValue, &desc); err != nil {
		return nil, errors.NewMalformedInput("invalid android-key attestation extension", err)
	}
	return &desc, nil
}
