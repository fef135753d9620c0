// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

// Package webauthn contains the FIDO2/WebAuthn wire types and binary parsers
// shared by the registration and assertion ceremonies. The JSON field names
// are part of the wire contract with browser clients and must be preserved
// verbatim.
package webauthn

import (
	"encoding/base64"
	"encoding/json"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/webauthn/cose"
)

// Base64URLBytes is a byte slice that marshals to and from unpadded
// base64url, the encoding browsers use for all WebAuthn binary fields.
type Base64URLBytes []byte

// MarshalJSON implements json.Marshaler.
func (b Base64URLBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Base64URLBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		// Some clients send padded base64url.
		decoded, err = base64.URLEncoding.DecodeString(s)
		if err != nil {
			return err
		}
	}
	*b = decoded
	return nil
}

// String returns the unpadded base64url form.
func (b Base64URLBytes) String() string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// UserVerification is the ceremony user-verification policy.
type UserVerification string

// User verification policies.
//
// https://www.w3.org/TR/webauthn-3/#enum-userVerificationRequirement
const (
	UserVerificationRequired    UserVerification = "required"
	UserVerificationPreferred   UserVerification = "preferred"
	UserVerificationDiscouraged UserVerification = "discouraged"
)

// RelyingPartyEntity describes the server to the authenticator.
type RelyingPartyEntity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// UserEntity describes the account being registered.
type UserEntity struct {
	ID          Base64URLBytes `json:"id"`
	Name        string         `json:"name"`
	DisplayName string         `json:"displayName,omitempty"`
}

// CredentialParameter is a negotiated credential type/algorithm pair.
type CredentialParameter struct {
	Type string         `json:"type"`
	Alg  cose.Algorithm `json:"alg"`
}

// CredentialDescriptor references an existing credential for the
// excludeCredentials and allowCredentials lists.
type CredentialDescriptor struct {
	Type string         `json:"type"`
	ID   Base64URLBytes `json:"id"`
}

// AuthenticatorSelection carries the authenticator requirements for a
// registration ceremony.
type AuthenticatorSelection struct {
	UserVerification UserVerification `json:"userVerification,omitempty"`
}

// CreationOptions is the PublicKeyCredentialCreationOptions document returned
// by beginRegistration.
type CreationOptions struct {
	Challenge              Base64URLBytes         `json:"challenge"`
	RP                     RelyingPartyEntity     `json:"rp"`
	User                   UserEntity             `json:"user"`
	PubKeyCredParams       []CredentialParameter  `json:"pubKeyCredParams"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection,omitempty"`
	ExcludeCredentials     []CredentialDescriptor `json:"excludeCredentials,omitempty"`
	Attestation            string                 `json:"attestation,omitempty"`
	Timeout                int64                  `json:"timeout,omitempty"`
}

// RequestOptions is the PublicKeyCredentialRequestOptions document returned
// by beginAssertion.
type RequestOptions struct {
	Challenge        Base64URLBytes         `json:"challenge"`
	RPID             string                 `json:"rpId"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification UserVerification       `json:"userVerification,omitempty"`
	Timeout          int64                  `json:"timeout,omitempty"`
}

// AttestationResponse is the authenticator response half of a registration.
type AttestationResponse struct {
	ClientDataJSON    Base64URLBytes `json:"clientDataJSON"`
	AttestationObject Base64URLBytes `json:"attestationObject"`
}

// RegistrationResponse is the credential returned by the browser at the end
// of a registration ceremony.
type RegistrationResponse struct {
	ID       string              `json:"id"`
	RawID    Base64URLBytes      `json:"rawId"`
	Type     string              `json:"type"`
	Response AttestationResponse `json:"response"`
}

// AssertionAuthenticatorResponse is the authenticator response half of an
// authentication ceremony.
type AssertionAuthenticatorResponse struct {
	ClientDataJSON    Base64URLBytes `json:"clientDataJSON"`
	AuthenticatorData Base64URLBytes `json:"authenticatorData"`
	Signature         Base64URLBytes `json:"signature"`
	UserHandle        Base64URLBytes `json:"userHandle,omitempty"`
}

// AssertionResponse is the credential returned by the browser at the end of
// an authentication ceremony.
type AssertionResponse struct {
	ID       string                         `json:"id"`
	RawID    Base64URLBytes                 `json:"rawId"`
	Type     string                         `json:"type"`
	Response AssertionAuthenticatorResponse `json:"response"`
}

// ClientData is the parsed clientDataJSON document.
//
// https://www.w3.org/TR/webauthn-3/#dictionary-client-data
type ClientData struct {
	Type        string         `json:"type"`
	Challenge   Base64URLBytes `json:"challenge"`
	Origin      string         `json:"origin"`
	CrossOrigin bool           `json:"crossOrigin,omitempty"`
}

// Client data types.
const (
	ClientDataTypeCreate = "webauthn.create"
	ClientDataTypeGet    = "webauthn.get"
)

// ParseClientData decodes and structurally validates a clientDataJSON
// payload.
func ParseClientData(raw []byte) (*ClientData, error) {
	var cd ClientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return nil, errors.NewMalformedInput("invalid clientDataJSON", err)
	}
	if cd.Type == "" || len(cd.Challenge) == 0 || cd.Origin == "" {
		return nil, errors.NewMalformedInput("clientDataJSON is missing required fields", nil)
	}
	return &cd, nil
}
