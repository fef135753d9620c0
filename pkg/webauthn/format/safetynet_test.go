// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
)

// newSafetyNetSigner returns a self-signed certificate that doubles as its
// own trust anchor, mirroring how the SafetyNet CA is pinned in production.
func newSafetyNetSigner(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(11),
		Subject:               pkix.Name{CommonName: "attest.android.com"},
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

func safetyNetJWS(t *testing.T, cert *x509.Certificate, key *rsa.PrivateKey, claims jwt.MapClaims) []byte {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["x5c"] = []string{base64.StdEncoding.EncodeToString(cert.Raw)}

	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return []byte(signed)
}

func safetyNetNonce(cred *testCredential) string {
	nonce := sha256.Sum256(append(append([]byte{}, cred.authData.Raw...), cred.clientDataHash...))
	return base64.StdEncoding.EncodeToString(nonce[:])
}

func TestSafetyNetAttestation(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cred := newTestCredential(t, 0x45, [16]byte{0x5a, 0xfe})
	cert, key := newSafetyNetSigner(t)

	jws := safetyNetJWS(t, cert, key, jwt.MapClaims{
		"nonce":           safetyNetNonce(cred),
		"ctsProfileMatch": true,
		"basicIntegrity":  true,
		"timestampMs":     now.Add(-time.Second).UnixMilli(),
	})

	req := cred.request(t, map[string]any{"ver": "14799021", "response": jws})
	req.TrustAnchors = []*x509.Certificate{cert}
	req.Now = func() time.Time { return now }

	result, err := (&safetyNetProcessor{}).Process(req)
	require.NoError(t, err)
	assert.Equal(t, AttestationBasic, result.AttestationType)
}

func TestSafetyNetAttestationStaleTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cred := newTestCredential(t, 0x45, [16]byte{0x5a, 0xfe})
	cert, key := newSafetyNetSigner(t)

	jws := safetyNetJWS(t, cert, key, jwt.MapClaims{
		"nonce":           safetyNetNonce(cred),
		"ctsProfileMatch": true,
		"timestampMs":     now.Add(-2 * time.Minute).UnixMilli(),
	})

	req := cred.request(t, map[string]any{"ver": "14799021", "response": jws})
	req.TrustAnchors = []*x509.Certificate{cert}
	req.Now = func() time.Time { return now }

	_, err := (&safetyNetProcessor{}).Process(req)
	assert.True(t, errors.IsFreshnessViolation(err))
}

func TestSafetyNetAttestationFutureTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cred := newTestCredential(t, 0x45, [16]byte{0x5a, 0xfe})
	cert, key := newSafetyNetSigner(t)

	jws := safetyNetJWS(t, cert, key, jwt.MapClaims{
		"nonce":           safetyNetNonce(cred),
		"ctsProfileMatch": true,
		"timestampMs":     now.Add(time.Minute).UnixMilli(),
	})

	req := cred.request(t, map[string]any{"ver": "14799021", "response": jws})
	req.TrustAnchors = []*x509.Certificate{cert}
	req.Now = func() time.Time { return now }

	_, err := (&safetyNetProcessor{}).Process(req)
	assert.True(t, errors.IsFreshnessViolation(err))
}

func TestSafetyNetAttestationNonceMismatch(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cred := newTestCredential(t, 0x45, [16]byte{0x5a, 0xfe})
	cert, key := newSafetyNetSigner(t)

	wrongNonce := sha256.Sum256([]byte("not the authenticator data"))
	jws := safetyNetJWS(t, cert, key, jwt.MapClaims{
		"nonce":           base64.StdEncoding.EncodeToString(wrongNonce[:]),
		"ctsProfileMatch": true,
		"timestampMs":     now.Add(-time.Second).UnixMilli(),
	})

	req := cred.request(t, map[string]any{"ver": "14799021", "response": jws})
	req.TrustAnchors = []*x509.Certificate{cert}
	req.Now = func() time.Time { return now }

	_, err := (&safetyNetProcessor{}).Process(req)
	assert.True(t, errors.IsCryptoFailure(err))
}

func TestSafetyNetAttestationCTSProfileMismatch(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cred := newTestCredential(t, 0x45, [16]byte{0x5a, 0xfe})
	cert, key := newSafetyNetSigner(t)

	jws := safetyNetJWS(t, cert, key, jwt.MapClaims{
		"nonce":           safetyNetNonce(cred),
		"ctsProfileMatch": false,
		"timestampMs":     now.Add(-time.Second).UnixMilli(),
	})

	req := cred.request(t, map[string]any{"ver": "14799021", "response": jws})
	req.TrustAnchors = []*x509.Certificate{cert}
	req.Now = func() time.Time { return now }

	_, err := (&safetyNetProcessor{}).Process(req)
	assert.True(t, errors.IsCryptoFailure(err))
}

func TestSafetyNetAttestationUntrustedSigner(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cred := newTestCredential(t, 0x45, [16]byte{0x5a, 0xfe})
	cert, key := newSafetyNetSigner(t)
	otherAnchor, _ := newAttestationCA(t)

	jws := safetyNetJWS(t, cert, key, jwt.MapClaims{
		"nonce":           safetyNetNonce(cred),
		"ctsProfileMatch": true,
		"timestampMs":     now.Add(-time.Second).UnixMilli(),
	})

	req := cred.request(t, map[string]any{"ver": "14799021", "response": jws})
	req.TrustAnchors = []*x509.Certificate{otherAnchor}
	req.Now = func() time.Time { return now }

	_, err := (&safetyNetProcessor{}).Process(req)
	assert.True(t, errors.IsCryptoFailure(err))
}
