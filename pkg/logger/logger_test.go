// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()

	previous := Get()
	t.Cleanup(func() { Set(previous) })

	var buf bytes.Buffer
	Set(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

func TestSecurityEvent(t *testing.T) {
	buf := captureLogs(t)

	SecurityEvent("attestation rejected", "username", "alice", "code", "crypto_failure")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "security event", entry["msg"])
	assert.Equal(t, "attestation rejected", entry["security_event"])
	assert.Equal(t, "alice", entry["username"])
	assert.Equal(t, "crypto_failure", entry["code"])
}

func TestGetReturnsCurrentLogger(t *testing.T) {
	buf := captureLogs(t)

	Get().Info("injected logger message", "k", "v")

	assert.Contains(t, buf.String(), "injected logger message")
}
