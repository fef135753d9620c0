// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
)

func TestAlgorithmString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ES256", ES256.String())
	assert.Equal(t, "RS1", RS1.String())
	assert.Equal(t, "Algorithm(0)", Algorithm(0).String())
}

func TestAlgorithmSupported(t *testing.T) {
	t.Parallel()

	for _, alg := range []Algorithm{ES256, ES384, ES512, PS256, PS384, PS512, RS256, RS384, RS512, RS1} {
		assert.True(t, alg.Supported(), "expected %s to be supported", alg)
	}
	assert.False(t, Algorithm(0).Supported())
	assert.False(t, Algorithm(-8).Supported())
}

func TestVerifySignatureES256(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	message := []byte("signed payload")
	digest := sha256.Sum256(message)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)

	assert.NoError(t, VerifySignature(&key.PublicKey, ES256, message, sig))

	tampered := append([]byte{}, message...)
	tampered[0] ^= 0xff
	err = VerifySignature(&key.PublicKey, ES256, tampered, sig)
	assert.True(t, errors.IsCryptoFailure(err))
}

func TestVerifySignatureRS256(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	message := []byte("signed payload")
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	assert.NoError(t, VerifySignature(&key.PublicKey, RS256, message, sig))

	err = VerifySignature(&key.PublicKey, RS256, []byte("other payload"), sig)
	assert.True(t, errors.IsCryptoFailure(err))
}

func TestVerifySignaturePS256(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	message := []byte("signed payload")
	digest := sha256.Sum256(message)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], opts)
	require.NoError(t, err)

	assert.NoError(t, VerifySignature(&key.PublicKey, PS256, message, sig))
}

func TestVerifySignatureKeyTypeMismatch(t *testing.T) {
	t.Parallel()

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	err = VerifySignature(&ecKey.PublicKey, RS256, []byte("payload"), []byte("sig"))
	assert.True(t, errors.IsCryptoFailure(err))

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	err = VerifySignature(&rsaKey.PublicKey, ES256, []byte("payload"), []byte("sig"))
	assert.True(t, errors.IsCryptoFailure(err))
}

func TestVerifySignatureUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	err = VerifySignature(&key.PublicKey, Algorithm(42), []byte("payload"), []byte("sig"))
	assert.True(t, errors.IsUnsupported(err))
}
