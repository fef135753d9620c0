// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

// Package cose implements the low-level cryptographic primitives of the
// FIDO2 verification pipeline: COSE public key decoding, signature
// verification across the supported algorithm set, certificate chain
// validation against trust anchors, and constant-time byte comparison.
//
// Every verification in this package fails closed: any decode or verify
// problem surfaces as an error, never as a silent pass.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1" // #nosec G505 - RS1 is required for legacy U2F authenticators
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
)

// Algorithm is a COSE algorithm identifier.
//
// https://www.iana.org/assignments/cose/cose.xhtml#algorithms
type Algorithm int

// The set of algorithms recognized and supported by this package.
const (
	ES256 Algorithm = -7
	ES384 Algorithm = -35
	ES512 Algorithm = -36
	PS256 Algorithm = -37
	PS384 Algorithm = -38
	PS512 Algorithm = -39
	RS256 Algorithm = -257
	RS384 Algorithm = -258
	RS512 Algorithm = -259

	// RS1 (RSASSA-PKCS1-v1_5 with SHA-1) is emitted by legacy U2F
	// authenticators and kept only for their sake.
	RS1 Algorithm = -65535
)

var algStrings = map[Algorithm]string{
	ES256: "ES256",
	ES384: "ES384",
	ES512: "ES512",
	PS256: "PS256",
	PS384: "PS384",
	PS512: "PS512",
	RS256: "RS256",
	RS384: "RS384",
	RS512: "RS512",
	RS1:   "RS1",
}

// String returns a human readable representation of the algorithm.
func (a Algorithm) String() string {
	if s, ok := algStrings[a]; ok {
		return s
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// Supported reports whether the algorithm is in the verification set.
func (a Algorithm) Supported() bool {
	_, ok := algStrings[a]
	return ok
}

func (a Algorithm) hashAndCryptoHash() (hash.Hash, crypto.Hash) {
	switch a {
	case ES256, PS256, RS256:
		return sha256.New(), crypto.SHA256
	case ES384, PS384, RS384:
		return sha512.New384(), crypto.SHA384
	case ES512, PS512, RS512:
		return sha512.New(), crypto.SHA512
	case RS1:
		return sha1.New(), crypto.SHA1 // #nosec G401
	default:
		return nil, 0
	}
}

// VerifySignature checks sig over signedBytes with the given public key and
// COSE algorithm. It returns a classified error when the signature does not
// verify, the key type does not match the algorithm, or the algorithm is
// unknown.
func VerifySignature(pub crypto.PublicKey, alg Algorithm, signedBytes, sig []byte) error {
	h, ch := alg.hashAndCryptoHash()
	if h == nil {
		return errors.NewUnsupported(fmt.Sprintf("unsupported signing algorithm %s", alg), nil)
	}
	h.Write(signedBytes)
	digest := h.Sum(nil)

	switch alg {
	case ES256, ES384, ES512:
		ecdsaPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return errors.NewCryptoFailure(fmt.Sprintf("invalid public key type for %s: %T", alg, pub), nil)
		}
		if !ecdsa.VerifyASN1(ecdsaPub, digest, sig) {
			return errors.NewCryptoFailure(fmt.Sprintf("invalid %s signature", alg), nil)
		}
	case PS256, PS384, PS512:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return errors.NewCryptoFailure(fmt.Sprintf("invalid public key type for %s: %T", alg, pub), nil)
		}
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: ch}
		if err := rsa.VerifyPSS(rsaPub, ch, digest, sig, opts); err != nil {
			return errors.NewCryptoFailure(fmt.Sprintf("invalid %s signature", alg), err)
		}
	case RS256, RS384, RS512, RS1:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return errors.NewCryptoFailure(fmt.Sprintf("invalid public key type for %s: %T", alg, pub), nil)
		}
		if err := rsa.VerifyPKCS1v15(rsaPub, ch, digest, sig); err != nil {
			return errors.NewCryptoFailure(fmt.Sprintf("invalid %s signature", alg), err)
		}
	default:
		return errors.NewUnsupported(fmt.Sprintf("unsupported signing algorithm %s", alg), nil)
	}
	return nil
}
