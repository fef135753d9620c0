// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

// Package uma implements the UMA 2.0 resource-server core: PAT acquisition,
// RPT introspection and validation, permission-ticket registration, and the
// bearer-token-profile challenge grammar.
package uma

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags the token variant.
type Kind string

// Token kinds.
const (
	// KindRPT is a Requesting Party Token: the bearer token a requester
	// presents to a resource server.
	KindRPT Kind = "rpt"

	// KindPCT is a Persisted Claims Token: it caches previously gathered
	// claims across permission-ticket exchanges.
	KindPCT Kind = "pct"
)

// Permission is one granted (resource, scopes) pair carried by an RPT.
type Permission struct {
	ResourceID string   `json:"resource_id"`
	Scopes     []string `json:"resource_scopes"`
	Expiry     int64    `json:"exp,omitempty"`
}

// Token is the tagged-variant token record shared by RPTs and PCTs.
// Kind-specific fields are only populated for their kind.
type Token struct {
	Kind      Kind
	Code      string
	ClientID  string
	CreatedAt time.Time
	ExpiresAt time.Time

	// Permissions holds the resolved scope grants of an RPT.
	Permissions []Permission

	// Claims holds the gathered requesting-party claims of a PCT.
	Claims map[string]any
}

// NewRPT mints an RPT for the given client with a fresh opaque code.
func NewRPT(clientID string, ttl time.Duration) *Token {
	now := time.Now()
	return &Token{
		Kind:      KindRPT,
		Code:      uuid.NewString(),
		ClientID:  clientID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// NewPCT mints a PCT for the given client carrying the gathered claims.
func NewPCT(clientID string, ttl time.Duration, claims map[string]any) *Token {
	now := time.Now()
	return &Token{
		Kind:      KindPCT,
		Code:      uuid.NewString(),
		ClientID:  clientID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Claims:    claims,
	}
}

// Expired reports whether the token is past its expiry at the given time.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// AddPermission appends a granted permission to an RPT.
func (t *Token) AddPermission(p Permission) {
	t.Permissions = append(t.Permissions, p)
}

// GrantedScopes returns the union of scopes granted for the given resource.
// Permissions without a resource restriction apply to every resource.
func (t *Token) GrantedScopes(resourceID string) map[string]bool {
	granted := make(map[string]bool)
	for _, p := range t.Permissions {
		if p.ResourceID != "" && p.ResourceID != resourceID {
			continue
		}
		for _, s := range p.Scopes {
			granted[s] = true
		}
	}
	return granted
}
