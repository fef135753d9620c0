// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package cose

import "crypto/subtle"

// ConstantTimeEqual compares two byte slices without short-circuiting on the
// first differing byte. All security-critical equality checks in the
// verification pipeline (rpIdHash, clientDataHash, nonce, challenge) go
// through this function.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
