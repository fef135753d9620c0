// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

// u2fSignatureBase builds 0x00 || rpIdHash || clientDataHash || credId ||
// uncompressed point for the test credential.
func u2fSignatureBase(cred *testCredential) []byte {
	base := []byte{0x00}
	base = append(base, cred.authData.RPIDHash...)
	base = append(base, cred.clientDataHash...)
	base = append(base, cred.credentialID...)
	base = append(base, cose.UncompressedECPoint(&cred.key.PublicKey)...)
	return base
}

func TestU2FSurrogateAttestation(t *testing.T) {
	t.Parallel()

	cred := newTestCredential(t, 0x41, [16]byte{})
	sig := signES256(t, cred.key, u2fSignatureBase(cred))

	req := cred.request(t, map[string]any{"sig": sig})
	result, err := (&u2fProcessor{}).Process(req)
	require.NoError(t, err)

	assert.Equal(t, AttestationSelf, result.AttestationType)
	assert.Equal(t, cred.credentialID, result.CredentialID)
}

func TestU2FRejectsNonZeroAAGUID(t *testing.T) {
	t.Parallel()

	cred := newTestCredential(t, 0x41, [16]byte{0x01})
	sig := signES256(t, cred.key, u2fSignatureBase(cred))

	req := cred.request(t, map[string]any{"sig": sig})
	_, err := (&u2fProcessor{}).Process(req)
	assert.True(t, errors.IsCryptoFailure(err))
}

func TestU2FRejectsMissingUserPresence(t *testing.T) {
	t.Parallel()

	cred := newTestCredential(t, 0x40, [16]byte{})
	sig := signES256(t, cred.key, u2fSignatureBase(cred))

	req := cred.request(t, map[string]any{"sig": sig})
	_, err := (&u2fProcessor{}).Process(req)
	assert.True(t, errors.IsCryptoFailure(err))
}

func TestU2FRejectsBadSignature(t *testing.T) {
	t.Parallel()

	cred := newTestCredential(t, 0x41, [16]byte{})
	sig := signES256(t, cred.key, []byte("wrong base"))

	req := cred.request(t, map[string]any{"sig": sig})
	_, err := (&u2fProcessor{}).Process(req)
	assert.True(t, errors.IsCryptoFailure(err))
}

func TestU2FRejectsECDAA(t *testing.T) {
	t.Parallel()

	cred := newTestCredential(t, 0x41, [16]byte{})
	req := cred.request(t, map[string]any{"sig": []byte{0x01}, "ecdaaKeyId": []byte{0x02}})

	_, err := (&u2fProcessor{}).Process(req)
	assert.True(t, errors.IsUnsupported(err))
}
