// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

// safetyNetMaxAge is how far in the past a SafetyNet statement timestamp may
// lie and still be accepted.
const safetyNetMaxAge = 60 * time.Second

func init() {
	Register(&safetyNetProcessor{})
}

// safetyNetStatement is the CBOR shape of an android-safetynet attStmt.
type safetyNetStatement struct {
	Version  string `cbor:"ver"`
	Response []byte `cbor:"response"`
}

// safetyNetProcessor handles the "android-safetynet" attestation format. The
// statement carries a JWS signed by the SafetyNet service; its signing chain
// is validated against the relying party's trust anchors.
//
// https://www.w3.org/TR/webauthn-3/#sctn-android-safetynet-attestation
type safetyNetProcessor struct{}

func (*safetyNetProcessor) Format() string {
	return "android-safetynet"
}

func (p *safetyNetProcessor) Process(req *Request) (*Result, error) {
	var stmt safetyNetStatement
	if err := cbor.Unmarshal(req.Statement, &stmt); err != nil {
		return nil, errors.NewMalformedInput("android-safetynet attestation statement is not valid CBOR", err)
	}
	if stmt.Version == "" || len(stmt.Response) == 0 {
		return nil, errors.NewMalformedInput("android-safetynet attestation statement is missing ver or response", nil)
	}

	if err := req.AuthData.VerifyRPIDHash(req.RPID); err != nil {
		return nil, err
	}
	if err := req.AuthData.VerifyUserVerification(req.UserVerification); err != nil {
		return nil, err
	}

	claims, err := p.verifyResponseJWS(string(stmt.Response), req.TrustAnchors)
	if err != nil {
		return nil, err
	}

	if err := p.verifyNonce(claims, req); err != nil {
		return nil, err
	}
	if err := p.verifyIntegrity(claims); err != nil {
		return nil, err
	}
	if err := p.verifyFreshness(claims, req.now()); err != nil {
		return nil, err
	}

	return resultFromCredential(req, AttestationBasic)
}

// verifyResponseJWS checks the JWS signature using the certificate chain
// embedded in its x5c header, which in turn must chain to a trust anchor.
func (*safetyNetProcessor) verifyResponseJWS(token string, anchors []*x509.Certificate) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "ES256"}))
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		rawX5C, ok := t.Header["x5c"].([]any)
		if !ok || len(rawX5C) == 0 {
			return nil, fmt.Errorf("safetynet response has no x5c header")
		}

		ders := make([][]byte, 0, len(rawX5C))
		for _, entry := range rawX5C {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("safetynet x5c entry is not a string")
			}
			der, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("safetynet x5c entry is not valid base64: %w", err)
			}
			ders = append(ders, der)
		}

		chain, err := cose.ParseCertificates(ders)
		if err != nil {
			return nil, err
		}
		leaf, err := cose.VerifyCertificateChain(chain, anchors)
		if err != nil {
			return nil, err
		}
		return leaf.PublicKey, nil
	})
	if err != nil {
		return nil, errors.NewCryptoFailure("android-safetynet response signature did not verify", err)
	}
	return claims, nil
}

// verifyNonce recomputes SHA-256(authData || clientDataHash) and compares it
// to the statement nonce.
func (*safetyNetProcessor) verifyNonce(claims jwt.MapClaims, req *Request) error {
	nonceB64, ok := claims["nonce"].(string)
	if !ok || nonceB64 == "" {
		return errors.NewMalformedInput("android-safetynet response is missing nonce", nil)
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return errors.NewMalformedInput("android-safetynet nonce is not valid base64", err)
	}

	expected := sha256.Sum256(append(append([]byte{}, req.AuthData.Raw...), req.ClientDataHash...))
	if !cose.ConstantTimeEqual(nonce, expected[:]) {
		return errors.NewCryptoFailure("android-safetynet nonce does not match authenticator data", nil)
	}
	return nil
}

func (*safetyNetProcessor) verifyIntegrity(claims jwt.MapClaims) error {
	cts, ok := claims["ctsProfileMatch"].(bool)
	if !ok {
		return errors.NewMalformedInput("android-safetynet response is missing ctsProfileMatch", nil)
	}
	if !cts {
		return errors.NewCryptoFailure("android-safetynet ctsProfileMatch is false", nil)
	}
	return nil
}

// verifyFreshness rejects statements stamped in the future or more than
// safetyNetMaxAge in the past.
func (*safetyNetProcessor) verifyFreshness(claims jwt.MapClaims, now time.Time) error {
	tsRaw, ok := claims["timestampMs"].(float64)
	if !ok {
		return errors.NewMalformedInput("android-safetynet response is missing timestampMs", nil)
	}
	ts := time.UnixMilli(int64(tsRaw))

	if ts.After(now) {
		return errors.NewFreshnessViolation("android-safetynet timestamp is in the future", nil)
	}
	if now.Sub(ts) > safetyNetMaxAge {
		return errors.NewFreshnessViolation("android-safetynet timestamp is stale", nil)
	}
	return nil
}
