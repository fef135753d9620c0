// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package uma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/logger"
)

// IntrospectionResult is the RPT status reported by the authorization server,
// or computed locally for JWT-format RPTs.
type IntrospectionResult struct {
	Active      bool         `json:"active"`
	Expiry      int64        `json:"exp,omitempty"`
	ClientID    string       `json:"client_id,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// TokenIntrospectionClient resolves the status of an RPT.
type TokenIntrospectionClient interface {
	IntrospectRPT(ctx context.Context, rpt string) (*IntrospectionResult, error)
}

// RPTValidator resolves RPT status. JWT-format RPTs are validated locally
// against the authorization server's JWKS; opaque RPTs go through the remote
// introspection endpoint authenticated with a PAT.
type RPTValidator struct {
	jwksURL               string
	introspectionEndpoint string
	jwksCache             *jwk.Cache
	httpClient            *http.Client
	pat                   *PATSource
	log                   *slog.Logger
}

// NewRPTValidator constructs an RPTValidator. When jwksURL is non-empty the
// key set is fetched and kept fresh for the lifetime of ctx.
func NewRPTValidator(ctx context.Context, jwksURL, introspectionEndpoint string, pat *PATSource, httpClient *http.Client) (*RPTValidator, error) {
	v := &RPTValidator{
		jwksURL:               jwksURL,
		introspectionEndpoint: introspectionEndpoint,
		httpClient:            httpClient,
		pat:                   pat,
		log:                   logger.Get(),
	}

	if jwksURL != "" {
		cache, err := jwk.NewCache(ctx, httprc.NewClient())
		if err != nil {
			return nil, errors.NewInternal("failed to create JWKS cache", err)
		}
		if err := cache.Register(ctx, jwksURL); err != nil {
			return nil, errors.NewUpstream("failed to register JWKS endpoint", err)
		}
		v.jwksCache = cache
	}
	return v, nil
}

// IntrospectRPT resolves the status of the given RPT.
func (v *RPTValidator) IntrospectRPT(ctx context.Context, rpt string) (*IntrospectionResult, error) {
	if rpt == "" {
		return &IntrospectionResult{Active: false}, nil
	}
	if v.jwksCache != nil && looksLikeJWT(rpt) {
		return v.validateJWT(ctx, rpt)
	}
	return v.introspectRemote(ctx, rpt)
}

// looksLikeJWT reports whether the token has the three-part compact JWS shape.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// validateJWT verifies a JWT-format RPT locally: signature against the JWKS,
// expiry, and the permissions claim.
func (v *RPTValidator) validateJWT(ctx context.Context, rpt string) (*IntrospectionResult, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256", "PS384", "PS512"}),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(rpt, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}

		set, err := v.jwksCache.Lookup(ctx, v.jwksURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
		}
		key, found := set.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("no key with ID %q in JWKS", kid)
		}

		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, fmt.Errorf("failed to export key material: %w", err)
		}
		return raw, nil
	})
	if err != nil {
		// An RPT that fails local validation is inactive, not an upstream
		// failure.
		v.log.Debug("JWT RPT rejected", "error", err)
		return &IntrospectionResult{Active: false}, nil
	}

	result := &IntrospectionResult{Active: true}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.Expiry = exp.Unix()
	}
	if sub, ok := claims["client_id"].(string); ok {
		result.ClientID = sub
	}
	if raw, ok := claims["permissions"]; ok {
		encoded, err := json.Marshal(raw)
		if err == nil {
			_ = json.Unmarshal(encoded, &result.Permissions)
		}
	}
	return result, nil
}

// introspectRemote calls the introspection endpoint with the RPT, presenting
// the PAT as the bearer credential.
func (v *RPTValidator) introspectRemote(ctx context.Context, rpt string) (*IntrospectionResult, error) {
	pat, err := v.pat.Token(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("token", rpt)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.introspectionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.NewInternal("failed to build introspection request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+pat.AccessToken)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewUpstream("introspection request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// The authorization server no longer accepts our PAT.
		v.pat.Invalidate()
		return nil, errors.NewUpstream("introspection rejected the PAT", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewUpstream(
			fmt.Sprintf("introspection endpoint returned %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.NewUpstream("failed to read introspection response", err)
	}

	var result IntrospectionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.NewUpstream("introspection response is not valid JSON", err)
	}
	return &result, nil
}
