// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

// Package policy evaluates UMA authorization policies. Policies are scripts
// resolved by distinguished name; an RPT scope upgrade is granted only when
// every policy bound to the resource allows it.
package policy

import "sync"

// RequiredClaim describes one claim a policy needs before it can decide.
type RequiredClaim struct {
	Name             string   `json:"name"`
	ClaimType        string   `json:"claim_type,omitempty"`
	FriendlyName     string   `json:"friendly_name,omitempty"`
	ClaimTokenFormat []string `json:"claim_token_format,omitempty"`
	Issuer           []string `json:"issuer,omitempty"`
}

// NeedInfo is the claims-gathering payload a denying policy may attach. It is
// serialized verbatim into the authorization response body.
type NeedInfo struct {
	Error          string          `json:"error"`
	Ticket         string          `json:"ticket,omitempty"`
	RequiredClaims []RequiredClaim `json:"required_claims,omitempty"`
	RedirectUser   string          `json:"redirect_user,omitempty"`
}

// NewNeedInfo builds a NeedInfo payload for the given claims.
func NewNeedInfo(claims ...RequiredClaim) *NeedInfo {
	return &NeedInfo{
		Error:          "need_info",
		RequiredClaims: claims,
	}
}

// Context carries the evaluation state handed to each policy: the resources
// and scopes under decision plus the requesting party's claims. Claims
// resolve in a fixed order: claims set locally during evaluation shadow the
// claims token, which shadows the PCT.
type Context struct {
	resourceIDs     []string
	requestedScopes map[string]bool

	mu          sync.RWMutex
	localClaims map[string]any
	tokenClaims map[string]any
	pctClaims   map[string]any

	scriptDN string
	needInfo *NeedInfo
}

// NewContext constructs an evaluation context for the given resources and
// requested scopes.
func NewContext(resourceIDs []string, requestedScopes []string) *Context {
	scopes := make(map[string]bool, len(requestedScopes))
	for _, s := range requestedScopes {
		scopes[s] = true
	}
	return &Context{
		resourceIDs:     resourceIDs,
		requestedScopes: scopes,
		localClaims:     make(map[string]any),
	}
}

// WithTokenClaims attaches the claims parsed from the requester's claims
// token.
func (c *Context) WithTokenClaims(claims map[string]any) *Context {
	c.tokenClaims = claims
	return c
}

// WithPCTClaims attaches the claims persisted in the requester's PCT.
func (c *Context) WithPCTClaims(claims map[string]any) *Context {
	c.pctClaims = claims
	return c
}

// ResourceIDs returns the resources under decision.
func (c *Context) ResourceIDs() []string {
	return c.resourceIDs
}

// ScopeRequested reports whether the given scope is part of the request.
func (c *Context) ScopeRequested(scope string) bool {
	return c.requestedScopes[scope]
}

// RequestedScopes returns the scopes under decision.
func (c *Context) RequestedScopes() []string {
	out := make([]string, 0, len(c.requestedScopes))
	for s := range c.requestedScopes {
		out = append(out, s)
	}
	return out
}

// Claim resolves a claim by name: local claims first, then the claims token,
// then the PCT.
func (c *Context) Claim(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.localClaims[name]; ok {
		return v, true
	}
	if v, ok := c.tokenClaims[name]; ok {
		return v, true
	}
	if v, ok := c.pctClaims[name]; ok {
		return v, true
	}
	return nil, false
}

// PutClaim sets a local claim, shadowing any token or PCT claim of the same
// name for the rest of the evaluation.
func (c *Context) PutClaim(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localClaims[name] = value
}

// RequireInfo records a claims-gathering request. A policy that returns false
// after calling this turns the denial into a need_info response.
func (c *Context) RequireInfo(info *NeedInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.needInfo = info
}

// NeedInfo returns the recorded claims-gathering request, if any.
func (c *Context) NeedInfo() *NeedInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.needInfo
}

// ScriptDN returns the distinguished name of the policy currently executing.
func (c *Context) ScriptDN() string {
	return c.scriptDN
}
