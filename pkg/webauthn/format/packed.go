// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/asn1"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

// id-fido-gen-ce-aaguid, the certificate extension binding an attestation
// certificate to an authenticator model.
var idFIDOGenCEAAGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

func init() {
	Register(&packedProcessor{})
}

// packedStatement is the CBOR shape of a packed attStmt.
type packedStatement struct {
	Algorithm  int64    `cbor:"alg"`
	Signature  []byte   `cbor:"sig"`
	X5C        [][]byte `cbor:"x5c,omitempty"`
	ECDAAKeyID []byte   `cbor:"ecdaaKeyId,omitempty"`
}

// packedProcessor handles the "packed" attestation format, covering both the
// full (certificate-backed) and self-attested variants.
//
// https://www.w3.org/TR/webauthn-3/#sctn-packed-attestation
type packedProcessor struct{}

func (*packedProcessor) Format() string {
	return "packed"
}

func (*packedProcessor) Process(req *Request) (*Result, error) {
	var stmt packedStatement
	if err := cbor.Unmarshal(req.Statement, &stmt); err != nil {
		return nil, errors.NewMalformedInput("packed attestation statement is not valid CBOR", err)
	}
	if stmt.Algorithm == 0 {
		return nil, errors.NewMalformedInput("packed attestation statement is missing alg", nil)
	}
	if len(stmt.Signature) == 0 {
		return nil, errors.NewMalformedInput("packed attestation statement is missing sig", nil)
	}
	if len(stmt.ECDAAKeyID) > 0 {
		return nil, errors.NewUnsupported("ECDAA attestation is not supported", nil)
	}

	if err := req.AuthData.VerifyRPIDHash(req.RPID); err != nil {
		return nil, err
	}
	if err := req.AuthData.VerifyUserVerification(req.UserVerification); err != nil {
		return nil, err
	}

	// The signature base is authenticatorData || clientDataHash for both
	// variants.
	signedBytes := append(append([]byte{}, req.AuthData.Raw...), req.ClientDataHash...)

	if len(stmt.X5C) == 0 {
		return processPackedSelf(req, &stmt, signedBytes)
	}
	return processPackedFull(req, &stmt, signedBytes)
}

// processPackedSelf verifies a self-attested statement: the signature was
// produced by the credential private key, so alg must match the credential
// key's declared algorithm.
func processPackedSelf(req *Request, stmt *packedStatement, signedBytes []byte) (*Result, error) {
	result, err := resultFromCredential(req, AttestationSelf)
	if err != nil {
		return nil, err
	}

	if cose.Algorithm(stmt.Algorithm) != result.Algorithm {
		return nil, errors.NewCryptoFailure(
			fmt.Sprintf("self attestation alg %d does not match credential key alg %d",
				stmt.Algorithm, result.Algorithm), nil)
	}
	if err := cose.VerifySignature(result.PublicKey.Key, result.Algorithm, signedBytes, stmt.Signature); err != nil {
		return nil, err
	}
	return result, nil
}

// processPackedFull verifies a certificate-backed statement against the
// packed attestation certificate requirements and the trust anchors.
//
// https://www.w3.org/TR/webauthn-3/#sctn-packed-attestation-cert-requirements
func processPackedFull(req *Request, stmt *packedStatement, signedBytes []byte) (*Result, error) {
	chain, err := cose.ParseCertificates(stmt.X5C)
	if err != nil {
		return nil, err
	}
	attCert := chain[0]

	if err := cose.VerifySignature(attCert.PublicKey, cose.Algorithm(stmt.Algorithm), signedBytes, stmt.Signature); err != nil {
		return nil, err
	}

	if attCert.Version != 3 {
		return nil, errors.NewCryptoFailure(
			fmt.Sprintf("attestation certificate uses version %d, must be version 3", attCert.Version), nil)
	}
	if ou := attCert.Subject.OrganizationalUnit; len(ou) != 1 || ou[0] != "Authenticator Attestation" {
		return nil, errors.NewCryptoFailure(
			"attestation certificate Subject-OU must be 'Authenticator Attestation'", nil)
	}
	if attCert.IsCA {
		return nil, errors.NewCryptoFailure("attestation certificate must not be a CA", nil)
	}

	result, err := resultFromCredential(req, AttestationBasic)
	if err != nil {
		return nil, err
	}

	// When present, the id-fido-gen-ce-aaguid extension must match the
	// AAGUID in the authenticator data.
	for _, ext := range attCert.Extensions {
		if !ext.Id.Equal(idFIDOGenCEAAGUID) {
			continue
		}
		var aaguid []byte
		if _, err := asn1.Unmarshal(ext.Value, &aaguid); err != nil {
			return nil, errors.NewMalformedInput("invalid id-fido-gen-ce-aaguid extension", err)
		}
		if !cose.ConstantTimeEqual(aaguid, req.AuthData.AttestedCredentialData.AAGUID[:]) {
			return nil, errors.NewCryptoFailure("certificate AAGUID does not match authenticator data", nil)
		}
		break
	}

	leaf, err := cose.VerifyCertificateChain(chain, req.TrustAnchors)
	if err != nil {
		return nil, err
	}
	result.AttestationCertificate = leaf
	return result, nil
}
