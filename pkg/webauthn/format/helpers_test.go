// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/JanssenProject/jans-authcore/pkg/webauthn"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

const testRPID = "login.example.org"

// testCredential is a synthetic EC credential with its authenticator data
// already parsed.
type testCredential struct {
	key            *ecdsa.PrivateKey
	credentialID   []byte
	authData       *webauthn.AuthenticatorData
	clientDataHash []byte
}

func encodeECCOSEKey(t *testing.T, pub *ecdsa.PublicKey, alg cose.Algorithm) []byte {
	t.Helper()

	x := make([]byte, 32)
	y := make([]byte, 32)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)

	b, err := cbor.Marshal(map[int]any{1: 2, 3: int(alg), -1: 1, -2: x, -3: y})
	require.NoError(t, err)
	return b
}

func newTestCredential(t *testing.T, flags byte, aaguid [16]byte) *testCredential {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	credID := []byte{0xca, 0xfe, 0x01, 0x02, 0x03, 0x04}
	coseKey := encodeECCOSEKey(t, &key.PublicKey, cose.ES256)

	rpHash := sha256.Sum256([]byte(testRPID))
	raw := append([]byte{}, rpHash[:]...)
	raw = append(raw, flags)
	raw = binary.BigEndian.AppendUint32(raw, 1)
	raw = append(raw, aaguid[:]...)
	raw = binary.BigEndian.AppendUint16(raw, uint16(len(credID)))
	raw = append(raw, credID...)
	raw = append(raw, coseKey...)

	authData, err := webauthn.ParseAuthenticatorData(raw)
	require.NoError(t, err)

	clientDataHash := sha256.Sum256([]byte(`{"type":"webauthn.create"}`))
	return &testCredential{
		key:            key,
		credentialID:   credID,
		authData:       authData,
		clientDataHash: clientDataHash[:],
	}
}

func (c *testCredential) request(t *testing.T, stmt any) *Request {
	t.Helper()

	raw, err := cbor.Marshal(stmt)
	require.NoError(t, err)

	return &Request{
		Statement:        raw,
		AuthData:         c.authData,
		ClientDataHash:   c.clientDataHash,
		RPID:             testRPID,
		UserVerification: webauthn.UserVerificationPreferred,
	}
}

// signES256 signs message with the given key over its SHA-256 digest.
func signES256(t *testing.T, key *ecdsa.PrivateKey, message []byte) []byte {
	t.Helper()

	digest := sha256.Sum256(message)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)
	return sig
}

func newAttestationCA(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Attestation Root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func newAttestationLeaf(t *testing.T, ca *x509.Certificate, caKey *ecdsa.PrivateKey, template *x509.Certificate) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.CreateCertificate(rand.Reader, template, ca, &key.PublicKey, caKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}
