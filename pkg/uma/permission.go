// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package uma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/logger"
	"github.com/JanssenProject/jans-authcore/pkg/uma/policy"
)

// TicketRequest is one (resource, scopes) pair registered for a permission
// ticket.
type TicketRequest struct {
	ResourceID string   `json:"resource_id"`
	Scopes     []string `json:"resource_scopes"`
}

// PermissionClient registers permission requests at the authorization server
// and returns the issued ticket.
type PermissionClient interface {
	RegisterTicket(ctx context.Context, requests []TicketRequest) (string, error)
}

// Challenge is the authorization challenge returned to a requester whose RPT
// is missing or insufficient.
type Challenge struct {
	Realm  string
	HostID string
	AsURI  string
	Ticket string
}

// Header renders the challenge in the UMA bearer token profile form for the
// WWW-Authenticate response header.
func (c *Challenge) Header() string {
	return fmt.Sprintf("UMA realm=%q, host_id=%s, as_uri=%s, ticket=%s",
		c.Realm, c.HostID, c.AsURI, c.Ticket)
}

// Decision is the outcome of validating an RPT against a protected resource.
// Exactly one of the three shapes holds: authorized, a ticket challenge, or a
// need_info payload (which also carries a ticket).
type Decision struct {
	Authorized bool
	Challenge  *Challenge
	NeedInfo   *policy.NeedInfo
}

// ValidationRequest describes one access attempt against a protected
// resource.
type ValidationRequest struct {
	RPT            string
	ResourceID     string
	RequiredScopes []string

	// Claims are locally resolved requesting-party claims fed to policy
	// evaluation, e.g. from the gathered claims token.
	Claims map[string]any

	// PCT is the requester's persisted claims token, if presented.
	PCT *Token
}

// Service validates RPTs for protected resources and issues permission
// tickets when access cannot be granted.
type Service struct {
	introspector TokenIntrospectionClient
	permissions  PermissionClient
	engine       *policy.Engine
	policyDNs    []string
	realm        string
	hostID       string
	asURI        string
	log          *slog.Logger
	now          func() time.Time
}

// NewService constructs a permission Service.
func NewService(
	introspector TokenIntrospectionClient,
	permissions PermissionClient,
	hostID, asURI string,
) *Service {
	return &Service{
		introspector: introspector,
		permissions:  permissions,
		realm:        "Authorization required",
		hostID:       hostID,
		asURI:        asURI,
		log:          logger.Get(),
		now:          time.Now,
	}
}

// WithPolicies enables policy evaluation for scope upgrades: a requester
// whose RPT lacks the required scopes is granted access anyway when every
// bound policy allows it.
func (s *Service) WithPolicies(engine *policy.Engine, policyDNs []string) *Service {
	s.engine = engine
	s.policyDNs = policyDNs
	return s
}

// ValidateRPT decides whether the presented RPT grants the required scopes on
// the resource. An inactive, expired or insufficient RPT yields a ticket
// challenge. Introspection failure is treated as not authorized: the
// requester gets a ticket challenge, never a grant and never a hard error.
func (s *Service) ValidateRPT(ctx context.Context, req *ValidationRequest) (*Decision, error) {
	if req.ResourceID == "" || len(req.RequiredScopes) == 0 {
		return nil, errors.NewMalformedInput("resource ID and required scopes must be set", nil)
	}

	if req.RPT != "" {
		status, err := s.introspector.IntrospectRPT(ctx, req.RPT)
		if err != nil {
			s.log.Warn("RPT introspection failed, treating token as not authorized", "error", err)
		} else if s.satisfies(status, req.ResourceID, req.RequiredScopes) {
			return &Decision{Authorized: true}, nil
		}
	}

	if s.engine != nil && len(s.policyDNs) > 0 {
		decision, err := s.authorizeByPolicy(ctx, req)
		if err != nil {
			s.log.Warn("policy evaluation did not grant access", "error", err)
		} else if decision.Allowed {
			return &Decision{Authorized: true}, nil
		} else if decision.NeedInfo != nil {
			return s.needInfoChallenge(ctx, req, decision.NeedInfo)
		}
	}

	return s.ticketChallenge(ctx, req)
}

// satisfies reports whether the introspected RPT actively grants every
// required scope on the resource.
func (s *Service) satisfies(status *IntrospectionResult, resourceID string, requiredScopes []string) bool {
	if status == nil || !status.Active {
		return false
	}
	if status.Expiry > 0 && s.now().Unix() >= status.Expiry {
		return false
	}

	now := s.now().Unix()
	granted := make(map[string]bool)
	for _, p := range status.Permissions {
		if p.ResourceID != "" && p.ResourceID != resourceID {
			continue
		}
		if p.Expiry > 0 && now >= p.Expiry {
			continue
		}
		for _, scope := range p.Scopes {
			granted[scope] = true
		}
	}

	for _, scope := range requiredScopes {
		if !granted[scope] {
			return false
		}
	}
	return true
}

func (s *Service) authorizeByPolicy(ctx context.Context, req *ValidationRequest) (policy.Decision, error) {
	actx := policy.NewContext([]string{req.ResourceID}, req.RequiredScopes).
		WithTokenClaims(req.Claims)
	if req.PCT != nil {
		actx = actx.WithPCTClaims(req.PCT.Claims)
	}
	return s.engine.Authorize(ctx, actx, s.policyDNs)
}

// ticketChallenge registers a permission ticket and wraps it in the
// WWW-Authenticate challenge.
func (s *Service) ticketChallenge(ctx context.Context, req *ValidationRequest) (*Decision, error) {
	ticket, err := s.permissions.RegisterTicket(ctx, []TicketRequest{{
		ResourceID: req.ResourceID,
		Scopes:     req.RequiredScopes,
	}})
	if err != nil {
		return nil, err
	}

	s.log.Debug("permission ticket issued",
		"resource_id", req.ResourceID,
		"scopes", req.RequiredScopes)
	return &Decision{
		Challenge: &Challenge{
			Realm:  s.realm,
			HostID: s.hostID,
			AsURI:  s.asURI,
			Ticket: ticket,
		},
	}, nil
}

// needInfoChallenge registers a ticket and attaches it to the policy's
// claims-gathering payload.
func (s *Service) needInfoChallenge(ctx context.Context, req *ValidationRequest, info *policy.NeedInfo) (*Decision, error) {
	decision, err := s.ticketChallenge(ctx, req)
	if err != nil {
		return nil, err
	}
	info.Ticket = decision.Challenge.Ticket
	decision.NeedInfo = info
	return decision, nil
}

// HTTPPermissionClient registers permission tickets over the UMA permission
// endpoint, presenting the PAT as the bearer credential.
type HTTPPermissionClient struct {
	endpoint   string
	pat        *PATSource
	httpClient *http.Client
}

// NewHTTPPermissionClient constructs an HTTPPermissionClient.
func NewHTTPPermissionClient(endpoint string, pat *PATSource, httpClient *http.Client) *HTTPPermissionClient {
	return &HTTPPermissionClient{
		endpoint:   endpoint,
		pat:        pat,
		httpClient: httpClient,
	}
}

// RegisterTicket posts the permission requests and returns the ticket.
func (c *HTTPPermissionClient) RegisterTicket(ctx context.Context, requests []TicketRequest) (string, error) {
	pat, err := c.pat.Token(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(requests)
	if err != nil {
		return "", errors.NewInternal("failed to encode permission requests", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.NewInternal("failed to build permission request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+pat.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewUpstream("permission registration failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.pat.Invalidate()
		return "", errors.NewUpstream("permission endpoint rejected the PAT", nil)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", errors.NewUpstream(
			fmt.Sprintf("permission endpoint returned %d", resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.NewUpstream("failed to read permission response", err)
	}

	var payload struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", errors.NewUpstream("permission response is not valid JSON", err)
	}
	if payload.Ticket == "" {
		return "", errors.NewUpstream("permission response has no ticket", nil)
	}
	return payload.Ticket, nil
}
