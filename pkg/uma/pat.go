// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package uma

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/logger"
)

// patRefreshWindow is how close to expiry a cached PAT may get before it is
// treated as stale and refreshed.
const patRefreshWindow = 10 * time.Second

// TokenIssuanceClient obtains a fresh Protection API Token from the
// authorization server's token endpoint.
type TokenIssuanceClient interface {
	RequestPAT(ctx context.Context) (*oauth2.Token, error)
}

// PATSource caches a Protection API Token and refreshes it on demand.
// Concurrent callers that find the cache stale are collapsed into a single
// upstream token request.
type PATSource struct {
	issuer TokenIssuanceClient
	log    *slog.Logger
	now    func() time.Time

	group  singleflight.Group
	mu     sync.RWMutex
	cached *oauth2.Token
}

// NewPATSource constructs a PATSource over the given issuance client.
func NewPATSource(issuer TokenIssuanceClient) *PATSource {
	return &PATSource{
		issuer: issuer,
		log:    logger.Get(),
		now:    time.Now,
	}
}

// Token returns a valid PAT, refreshing it through the issuance client when
// the cached one is missing or within the refresh window of its expiry. PAT
// issuance failure is fatal for the calling operation; it is never converted
// into an authorization decision.
func (s *PATSource) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok := s.current(); tok != nil {
		return tok, nil
	}

	v, err, _ := s.group.Do("pat", func() (any, error) {
		// A caller that lost the race may arrive after the winner already
		// refreshed the cache.
		if tok := s.current(); tok != nil {
			return tok, nil
		}

		tok, err := s.issuer.RequestPAT(ctx)
		if err != nil {
			return nil, errors.NewUpstream("PAT issuance failed", err)
		}
		if tok == nil || tok.AccessToken == "" {
			return nil, errors.NewUpstream("PAT issuance returned an empty token", nil)
		}

		s.mu.Lock()
		s.cached = tok
		s.mu.Unlock()

		s.log.Debug("PAT refreshed", "expires_at", tok.Expiry)
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// Invalidate drops the cached PAT, forcing a refresh on the next call. Used
// after the authorization server rejects the current one.
func (s *PATSource) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// current returns the cached token if it is still usable.
func (s *PATSource) current() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cached == nil {
		return nil
	}
	if !s.cached.Expiry.IsZero() && s.now().Add(patRefreshWindow).After(s.cached.Expiry) {
		return nil
	}
	return s.cached
}

// ClientCredentialsIssuer requests PATs from the token endpoint with the
// client_credentials grant and the uma_protection scope. When a signing key is
// configured the client authenticates with a private_key_jwt assertion,
// otherwise the HTTP client's transport credentials apply.
type ClientCredentialsIssuer struct {
	tokenEndpoint string
	clientID      string
	keyID         string
	signingKey    *rsa.PrivateKey
	httpClient    *http.Client
	maxTries      uint
}

// NewClientCredentialsIssuer constructs a ClientCredentialsIssuer.
func NewClientCredentialsIssuer(tokenEndpoint, clientID string, httpClient *http.Client) *ClientCredentialsIssuer {
	return &ClientCredentialsIssuer{
		tokenEndpoint: tokenEndpoint,
		clientID:      clientID,
		httpClient:    httpClient,
		maxTries:      3,
	}
}

// WithSigningKey enables private_key_jwt client authentication using the
// given key, advertised under keyID.
func (c *ClientCredentialsIssuer) WithSigningKey(key *rsa.PrivateKey, keyID string) *ClientCredentialsIssuer {
	c.signingKey = key
	c.keyID = keyID
	return c
}

// RequestPAT performs the token request, retrying transient failures with
// exponential backoff. Definitive rejections from the server are not retried.
func (c *ClientCredentialsIssuer) RequestPAT(ctx context.Context) (*oauth2.Token, error) {
	return backoff.Retry(ctx, func() (*oauth2.Token, error) {
		return c.requestOnce(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
}

func (c *ClientCredentialsIssuer) requestOnce(ctx context.Context) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "uma_protection")

	if c.signingKey != nil {
		assertion, err := c.clientAssertion()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		form.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
		form.Set("client_assertion", assertion)
		form.Set("client_id", c.clientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("token endpoint rejected the request with %d", resp.StatusCode))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("token endpoint response is not valid JSON: %w", err))
	}
	if payload.AccessToken == "" {
		return nil, backoff.Permanent(fmt.Errorf("token endpoint response has no access_token"))
	}

	tok := &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
	}
	if payload.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// clientAssertion builds the signed private_key_jwt assertion.
func (c *ClientCredentialsIssuer) clientAssertion() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": c.clientID,
		"sub": c.clientID,
		"aud": c.tokenEndpoint,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	if c.keyID != "" {
		token.Header["kid"] = c.keyID
	}

	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign client assertion: %w", err)
	}
	return signed, nil
}
