// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
)

// COSE key types.
//
// https://www.iana.org/assignments/cose/cose.xhtml#key-type
const (
	keyTypeEC2 = 2
	keyTypeRSA = 3
)

// COSE elliptic curves.
const (
	curveP256 = 1
	curveP384 = 2
	curveP521 = 3
)

// PublicKey is a decoded COSE public key together with the algorithm it was
// declared for.
type PublicKey struct {
	Algorithm Algorithm
	Key       crypto.PublicKey
}

// ecKeyShape and rsaKeyShape give the negative-label fields their per-type
// meaning; COSE reuses labels -1/-2 across key types.
type ecKeyShape struct {
	KeyType   int    `cbor:"1,keyasint"`
	Algorithm int    `cbor:"3,keyasint,omitempty"`
	Curve     int    `cbor:"-1,keyasint,omitempty"`
	X         []byte `cbor:"-2,keyasint,omitempty"`
	Y         []byte `cbor:"-3,keyasint,omitempty"`
}

type rsaKeyShape struct {
	KeyType   int    `cbor:"1,keyasint"`
	Algorithm int    `cbor:"3,keyasint,omitempty"`
	N         []byte `cbor:"-1,keyasint,omitempty"`
	E         []byte `cbor:"-2,keyasint,omitempty"`
}

type keyTypeOnly struct {
	KeyType int `cbor:"1,keyasint"`
}

// DecodePublicKey decodes a CBOR-encoded COSE_Key into a Go public key.
// Structurally invalid input is classified as malformed; valid CBOR carrying
// an unknown key type or curve is classified as unsupported.
func DecodePublicKey(b []byte) (*PublicKey, error) {
	var kt keyTypeOnly
	if err := cbor.Unmarshal(b, &kt); err != nil {
		return nil, errors.NewMalformedInput("invalid COSE key encoding", err)
	}

	switch kt.KeyType {
	case keyTypeEC2:
		var k ecKeyShape
		if err := cbor.Unmarshal(b, &k); err != nil {
			return nil, errors.NewMalformedInput("invalid COSE EC2 key encoding", err)
		}
		return decodeEC2Key(&k)
	case keyTypeRSA:
		var k rsaKeyShape
		if err := cbor.Unmarshal(b, &k); err != nil {
			return nil, errors.NewMalformedInput("invalid COSE RSA key encoding", err)
		}
		return decodeRSAKey(&k)
	default:
		return nil, errors.NewUnsupported(fmt.Sprintf("unsupported COSE key type %d", kt.KeyType), nil)
	}
}

func decodeEC2Key(k *ecKeyShape) (*PublicKey, error) {
	var curve elliptic.Curve
	switch k.Curve {
	case curveP256:
		curve = elliptic.P256()
	case curveP384:
		curve = elliptic.P384()
	case curveP521:
		curve = elliptic.P521()
	default:
		return nil, errors.NewUnsupported(fmt.Sprintf("unsupported COSE curve %d", k.Curve), nil)
	}

	if len(k.X) == 0 || len(k.Y) == 0 {
		return nil, errors.NewMalformedInput("COSE EC2 key missing coordinates", nil)
	}

	pub := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(k.X),
		Y:     new(big.Int).SetBytes(k.Y),
	}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.NewMalformedInput("COSE EC2 key point is not on its curve", nil)
	}

	return &PublicKey{
		Algorithm: Algorithm(k.Algorithm),
		Key:       pub,
	}, nil
}

func decodeRSAKey(k *rsaKeyShape) (*PublicKey, error) {
	if len(k.N) == 0 || len(k.E) == 0 {
		return nil, errors.NewMalformedInput("COSE RSA key missing modulus or exponent", nil)
	}
	e := new(big.Int).SetBytes(k.E)
	if !e.IsInt64() || e.Int64() <= 1 {
		return nil, errors.NewMalformedInput("COSE RSA key has invalid exponent", nil)
	}

	return &PublicKey{
		Algorithm: Algorithm(k.Algorithm),
		Key: &rsa.PublicKey{
			N: new(big.Int).SetBytes(k.N),
			E: int(e.Int64()),
		},
	}, nil
}

// MarshalPublicKey serializes a public key to PKIX DER for persistence.
func MarshalPublicKey(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.NewInternal("failed to serialize public key", err)
	}
	return der, nil
}

// ParsePublicKey is the inverse of MarshalPublicKey.
func ParsePublicKey(der []byte) (crypto.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.NewMalformedInput("failed to parse stored public key", err)
	}
	return pub, nil
}

// UncompressedECPoint encodes an ECDSA public key as an uncompressed SEC1
// point (0x04 || X || Y). This is the layout the U2F registration signature
// base requires.
func UncompressedECPoint(pub *ecdsa.PublicKey) []byte {
	return elliptic.Marshal(pub.Curve, pub.X, pub.Y) //nolint:staticcheck // SEC1 point needed for the U2F signature base
}
