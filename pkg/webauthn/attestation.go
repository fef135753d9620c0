// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package webauthn

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
)

// AttestationObject is the CBOR document delivered in a registration
// response.
//
// https://www.w3.org/TR/webauthn-3/#attestation-object
type AttestationObject struct {
	Format       string          `cbor:"fmt"`
	RawStatement cbor.RawMessage `cbor:"attStmt"`
	RawAuthData  []byte          `cbor:"authData"`

	// AuthData is the parsed form of RawAuthData.
	AuthData *AuthenticatorData `cbor:"-"`
}

// ParseAttestationObject decodes the attestation object and its embedded
// authenticator data.
func ParseAttestationObject(b []byte) (*AttestationObject, error) {
	var obj AttestationObject
	if err := cbor.Unmarshal(b, &obj); err != nil {
		return nil, errors.NewMalformedInput("attestation object is not valid CBOR", err)
	}
	if obj.Format == "" {
		return nil, errors.NewMalformedInput("attestation object is missing fmt", nil)
	}
	if len(obj.RawAuthData) == 0 {
		return nil, errors.NewMalformedInput("attestation object is missing authData", nil)
	}

	authData, err := ParseAuthenticatorData(obj.RawAuthData)
	if err != nil {
		return nil, err
	}
	obj.AuthData = authData
	return &obj, nil
}
