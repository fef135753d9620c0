// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
)

func init() {
	Register(&noneProcessor{})
}

// noneProcessor handles the "none" attestation format: the statement must be
// an empty map and nothing is verified beyond the authenticator data itself.
//
// https://www.w3.org/TR/webauthn-3/#sctn-none-attestation
type noneProcessor struct{}

func (*noneProcessor) Format() string {
	return "none"
}

func (*noneProcessor) Process(req *Request) (*Result, error) {
	if len(req.Statement) > 0 {
		var stmt map[string]cbor.RawMessage
		if err := cbor.Unmarshal(req.Statement, &stmt); err != nil {
			return nil, errors.NewMalformedInput("none attestation statement is not valid CBOR", err)
		}
		if len(stmt) != 0 {
			return nil, errors.NewMalformedInput("none attestation statement must be empty", nil)
		}
	}

	if err := req.AuthData.VerifyRPIDHash(req.RPID); err != nil {
		return nil, err
	}
	if err := req.AuthData.VerifyUserVerification(req.UserVerification); err != nil {
		return nil, err
	}

	return resultFromCredential(req, AttestationNone)
}
