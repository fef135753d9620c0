// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package cose

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
)

func encodeECKey(t *testing.T, pub *ecdsa.PublicKey, alg Algorithm) []byte {
	t.Helper()

	size := (pub.Curve.Params().BitSize + 7) / 8
	x := make([]byte, size)
	y := make([]byte, size)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)

	b, err := cbor.Marshal(map[int]any{
		1:  keyTypeEC2,
		3:  int(alg),
		-1: curveP256,
		-2: x,
		-3: y,
	})
	require.NoError(t, err)
	return b
}

func TestDecodePublicKeyEC2(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	decoded, err := DecodePublicKey(encodeECKey(t, &key.PublicKey, ES256))
	require.NoError(t, err)
	assert.Equal(t, ES256, decoded.Algorithm)

	ecPub, ok := decoded.Key.(*ecdsa.PublicKey)
	require.True(t, ok)
	assert.Zero(t, ecPub.X.Cmp(key.PublicKey.X))
	assert.Zero(t, ecPub.Y.Cmp(key.PublicKey.Y))
}

func TestDecodePublicKeyRSA(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	b, err := cbor.Marshal(map[int]any{
		1:  keyTypeRSA,
		3:  int(RS256),
		-1: key.PublicKey.N.Bytes(),
		-2: big.NewInt(int64(key.PublicKey.E)).Bytes(),
	})
	require.NoError(t, err)

	decoded, err := DecodePublicKey(b)
	require.NoError(t, err)
	assert.Equal(t, RS256, decoded.Algorithm)

	rsaPub, ok := decoded.Key.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, key.PublicKey.E, rsaPub.E)
	assert.Zero(t, rsaPub.N.Cmp(key.PublicKey.N))
}

func TestDecodePublicKeyUnsupportedKeyType(t *testing.T) {
	t.Parallel()

	b, err := cbor.Marshal(map[int]any{1: 1}) // OKP
	require.NoError(t, err)

	_, err = DecodePublicKey(b)
	assert.True(t, errors.IsUnsupported(err))
}

func TestDecodePublicKeyOffCurve(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	bent := &ecdsa.PublicKey{
		Curve: key.PublicKey.Curve,
		X:     key.PublicKey.X,
		Y:     new(big.Int).Add(key.PublicKey.Y, big.NewInt(1)),
	}
	_, err = DecodePublicKey(encodeECKey(t, bent, ES256))
	assert.True(t, errors.IsMalformedInput(err))
}

func TestDecodePublicKeyGarbage(t *testing.T) {
	t.Parallel()

	_, err := DecodePublicKey([]byte{0xff, 0x00, 0x01})
	assert.True(t, errors.IsMalformedInput(err))
}

func TestMarshalParseRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := MarshalPublicKey(&key.PublicKey)
	require.NoError(t, err)

	parsed, err := ParsePublicKey(der)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsed))
}

func TestUncompressedECPoint(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	point := UncompressedECPoint(&key.PublicKey)
	require.Len(t, point, 65)
	assert.Equal(t, byte(0x04), point[0])
}
