// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

// Package format contains the attestation format registry and the per-format
// verification processors. Each processor is a pure verification function:
// its only inputs are the attestation statement, the parsed authenticator
// data, the client data hash, and the trust anchors resolved by the caller.
package format

import (
	"crypto/x509"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

// Attestation types reported in verification results.
const (
	// AttestationNone means the authenticator provided no attestation.
	AttestationNone = "none"
	// AttestationSelf means the statement was signed with the credential
	// key itself (surrogate attestation).
	AttestationSelf = "self"
	// AttestationBasic means the statement was signed by an attestation
	// certificate chaining to a trust anchor.
	AttestationBasic = "basic"
)

// Request carries everything a processor needs to verify one attestation
// statement.
type Request struct {
	// Statement is the raw CBOR attStmt for the format being verified.
	Statement cbor.RawMessage

	// AuthData is the parsed authenticator data; AuthData.Raw is the byte
	// sequence signature bases are computed over.
	AuthData *webauthn.AuthenticatorData

	// ClientDataHash is SHA-256 of the ceremony clientDataJSON.
	ClientDataHash []byte

	// RPID is the relying party identifier the ceremony was issued for.
	RPID string

	// UserVerification is the policy negotiated at challenge time.
	UserVerification webauthn.UserVerification

	// TrustAnchors are the roots the certificate-based formats chain to.
	TrustAnchors []*x509.Certificate

	// Now overrides the clock for freshness checks. Nil means time.Now.
	Now func() time.Time
}

func (r *Request) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Result is the outcome of a successful attestation verification.
type Result struct {
	AttestationType string
	CredentialID    []byte
	Algorithm       cose.Algorithm
	PublicKey       *cose.PublicKey
	RawPublicKey    []byte
	SignCount       uint32

	// AttestationCertificate is set for certificate-based attestation
	// types.
	AttestationCertificate *x509.Certificate
}

// Processor verifies one attestation statement format. Implementations must
// either return a fully populated Result or a classified error; partial
// verification never succeeds.
type Processor interface {
	// Format returns the format identifier as it appears on the wire,
	// e.g. "fido-u2f".
	Format() string

	// Process runs the format's verification checks in their mandated
	// order, failing fast on the first violation.
	Process(req *Request) (*Result, error)
}

// registry holds the registered format processors, keyed by normalized
// format name.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]Processor)
)

// normalize maps a wire format name to its registry key.
func normalize(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// Register registers a Processor for its format name. This is called from
// init() functions of the processor implementations. It panics if a
// processor is already registered for the format.
func Register(p Processor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	key := normalize(p.Format())
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("attestation processor already registered for format: %s", p.Format()))
	}
	registry[key] = p
}

// Resolve returns the Processor for the given wire format name. Unknown
// formats produce a terminal unsupported error; the ceremony must be
// rejected, not retried.
func Resolve(formatName string) (Processor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	p, ok := registry[normalize(formatName)]
	if !ok {
		return nil, errors.NewUnsupported(fmt.Sprintf("unsupported attestation format %q", formatName), nil)
	}
	return p, nil
}

// RegisteredFormats returns the wire names of all registered formats.
func RegisteredFormats() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for _, p := range registry {
		names = append(names, p.Format())
	}
	return names
}

// resultFromCredential builds the common Result fields from the attested
// credential data block.
func resultFromCredential(req *Request, attType string) (*Result, error) {
	acd := req.AuthData.AttestedCredentialData
	if acd == nil {
		return nil, errors.NewMalformedInput("authenticator data carries no attested credential", nil)
	}
	return &Result{
		AttestationType: attType,
		CredentialID:    acd.CredentialID,
		Algorithm:       acd.PublicKey.Algorithm,
		PublicKey:       acd.PublicKey,
		RawPublicKey:    acd.RawPublicKey,
		SignCount:       req.AuthData.SignCount,
	}, nil
}
