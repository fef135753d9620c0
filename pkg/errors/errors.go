// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the stable, machine-readable failure taxonomy for
// the authorization core. Verification failures never leak internal detail to
// callers; they collapse to one of the codes below.
package errors

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// ErrMalformedInput is returned for bad base64, truncated CBOR, or
	// missing required JSON fields. Terminal for the ceremony, no retry.
	ErrMalformedInput = "malformed_input"

	// ErrCryptoFailure is returned for signature mismatches, untrusted
	// certificate chains, and nonce mismatches. Never retried.
	ErrCryptoFailure = "crypto_failure"

	// ErrCounterReplay is returned when an assertion's signature counter did
	// not increase. Kept distinct from ErrCryptoFailure so that replays are
	// separately alertable.
	ErrCounterReplay = "counter_replay"

	// ErrFreshnessViolation is returned when an attestation timestamp falls
	// outside its allowed window.
	ErrFreshnessViolation = "freshness_violation"

	// ErrUnsupported is returned for unknown attestation formats and for
	// attestation variants this server does not implement (e.g. ECDAA).
	// Terminal and not retryable.
	ErrUnsupported = "unsupported"

	// ErrChallengeNotPending is returned when a ceremony response references
	// a challenge that is missing, expired, or already resolved.
	ErrChallengeNotPending = "challenge_not_pending"

	// ErrNoCredentials is returned when an assertion is requested for a user
	// with no registered credentials.
	ErrNoCredentials = "no_credentials_registered"

	// ErrUpstream is returned when a dependency (PAT issuance, trust anchor
	// fetch) fails. Callers should treat this as a 5xx-equivalent service
	// failure, not as an authorization denial.
	ErrUpstream = "upstream_failure"

	// ErrForbidden is returned when policy evaluation denies access.
	ErrForbidden = "forbidden"

	// ErrInternal is returned for unexpected internal failures.
	ErrInternal = "internal"
)

// Error represents a classified failure in the authorization core.
type Error struct {
	// Code is the stable machine-readable error code.
	Code string

	// Message is a human-readable description safe to surface to callers.
	Message string

	// Cause is the underlying error, if any. It is preserved for logging
	// but must not be serialized to clients.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new classified error.
func New(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewMalformedInput creates a new malformed input error.
func NewMalformedInput(message string, cause error) *Error {
	return New(ErrMalformedInput, message, cause)
}

// NewCryptoFailure creates a new cryptographic failure error.
func NewCryptoFailure(message string, cause error) *Error {
	return New(ErrCryptoFailure, message, cause)
}

// NewCounterReplay creates a new counter replay error.
func NewCounterReplay(message string, cause error) *Error {
	return New(ErrCounterReplay, message, cause)
}

// NewFreshnessViolation creates a new freshness violation error.
func NewFreshnessViolation(message string, cause error) *Error {
	return New(ErrFreshnessViolation, message, cause)
}

// NewUnsupported creates a new unsupported feature error.
func NewUnsupported(message string, cause error) *Error {
	return New(ErrUnsupported, message, cause)
}

// NewChallengeNotPending creates a new challenge-not-pending error.
func NewChallengeNotPending(message string, cause error) *Error {
	return New(ErrChallengeNotPending, message, cause)
}

// NewNoCredentials creates a new no-credentials-registered error.
func NewNoCredentials(message string, cause error) *Error {
	return New(ErrNoCredentials, message, cause)
}

// NewUpstream creates a new upstream dependency failure error.
func NewUpstream(message string, cause error) *Error {
	return New(ErrUpstream, message, cause)
}

// NewForbidden creates a new authorization denial error.
func NewForbidden(message string, cause error) *Error {
	return New(ErrForbidden, message, cause)
}

// NewInternal creates a new internal error.
func NewInternal(message string, cause error) *Error {
	return New(ErrInternal, message, cause)
}

// CodeOf returns the taxonomy code carried by err, or ErrInternal when the
// error was not classified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}

// HasCode checks whether err carries the given taxonomy code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsMalformedInput checks if the error is a malformed input error.
func IsMalformedInput(err error) bool {
	return HasCode(err, ErrMalformedInput)
}

// IsCryptoFailure checks if the error is a cryptographic failure error.
func IsCryptoFailure(err error) bool {
	return HasCode(err, ErrCryptoFailure)
}

// IsCounterReplay checks if the error is a counter replay error.
func IsCounterReplay(err error) bool {
	return HasCode(err, ErrCounterReplay)
}

// IsFreshnessViolation checks if the error is a freshness violation error.
func IsFreshnessViolation(err error) bool {
	return HasCode(err, ErrFreshnessViolation)
}

// IsUnsupported checks if the error is an unsupported feature error.
func IsUnsupported(err error) bool {
	return HasCode(err, ErrUnsupported)
}

// IsChallengeNotPending checks if the error is a challenge-not-pending error.
func IsChallengeNotPending(err error) bool {
	return HasCode(err, ErrChallengeNotPending)
}

// IsNoCredentials checks if the error is a no-credentials-registered error.
func IsNoCredentials(err error) bool {
	return HasCode(err, ErrNoCredentials)
}

// IsUpstream checks if the error is an upstream dependency failure.
func IsUpstream(err error) bool {
	return HasCode(err, ErrUpstream)
}

// IsForbidden checks if the error is an authorization denial.
func IsForbidden(err error) bool {
	return HasCode(err, ErrForbidden)
}
