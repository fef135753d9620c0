// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package webauthn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
)

func TestBase64URLBytesRoundTrip(t *testing.T) {
	t.Parallel()

	in := Base64URLBytes{0xfb, 0xff, 0x00, 0x01}
	encoded, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `"-_8AAQ"`, string(encoded))

	var out Base64URLBytes
	require.NoError(t, json.Unmarshal(encoded, &out))
	assert.Equal(t, in, out)
}

func TestBase64URLBytesAcceptsPadded(t *testing.T) {
	t.Parallel()

	var out Base64URLBytes
	require.NoError(t, json.Unmarshal([]byte(`"-_8AAQ=="`), &out))
	assert.Equal(t, Base64URLBytes{0xfb, 0xff, 0x00, 0x01}, out)
}

func TestBase64URLBytesRejectsInvalid(t *testing.T) {
	t.Parallel()

	var out Base64URLBytes
	assert.Error(t, json.Unmarshal([]byte(`"not base64!!"`), &out))
	assert.Error(t, json.Unmarshal([]byte(`42`), &out))
}

func TestParseClientData(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"type":"webauthn.create","challenge":"dGVzdA","origin":"https://login.example.org"}`)
	cd, err := ParseClientData(raw)
	require.NoError(t, err)

	assert.Equal(t, ClientDataTypeCreate, cd.Type)
	assert.Equal(t, "https://login.example.org", cd.Origin)
	assert.Equal(t, []byte("test"), []byte(cd.Challenge))
}

func TestParseClientDataRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{{`},
		{name: "missing type", raw: `{"challenge":"dGVzdA","origin":"https://login.example.org"}`},
		{name: "missing challenge", raw: `{"type":"webauthn.get","origin":"https://login.example.org"}`},
		{name: "missing origin", raw: `{"type":"webauthn.get","challenge":"dGVzdA"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseClientData([]byte(tt.raw))
			assert.True(t, errors.IsMalformedInput(err))
		})
	}
}

func TestParseAttestationObjectRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseAttestationObject([]byte{0xff, 0x01})
	assert.True(t, errors.IsMalformedInput(err))
}
