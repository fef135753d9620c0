// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package uma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
)

type fakeIssuer struct {
	calls atomic.Int64
	token *oauth2.Token
	err   error
}

func (f *fakeIssuer) RequestPAT(context.Context) (*oauth2.Token, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func TestPATSourceCachesToken(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{token: &oauth2.Token{
		AccessToken: "pat-1",
		Expiry:      time.Now().Add(time.Hour),
	}}
	source := NewPATSource(issuer)

	for range 5 {
		tok, err := source.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "pat-1", tok.AccessToken)
	}
	assert.Equal(t, int64(1), issuer.calls.Load())
}

func TestPATSourceSingleFlight(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{token: &oauth2.Token{
		AccessToken: "pat-1",
		Expiry:      time.Now().Add(time.Hour),
	}}
	source := NewPATSource(issuer)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := source.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "pat-1", tok.AccessToken)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), issuer.calls.Load())
}

func TestPATSourceRefreshesNearExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	issuer := &fakeIssuer{token: &oauth2.Token{
		AccessToken: "pat-1",
		// Within the 10 second refresh window.
		Expiry: now.Add(5 * time.Second),
	}}
	source := NewPATSource(issuer)
	source.now = func() time.Time { return now }

	_, err := source.Token(context.Background())
	require.NoError(t, err)
	_, err = source.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), issuer.calls.Load())
}

func TestPATSourceIssuanceFailure(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{err: fmt.Errorf("token endpoint is down")}
	source := NewPATSource(issuer)

	_, err := source.Token(context.Background())
	assert.True(t, errors.IsUpstream(err))
}

func TestPATSourceInvalidate(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{token: &oauth2.Token{
		AccessToken: "pat-1",
		Expiry:      time.Now().Add(time.Hour),
	}}
	source := NewPATSource(issuer)

	_, err := source.Token(context.Background())
	require.NoError(t, err)

	source.Invalidate()
	_, err = source.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), issuer.calls.Load())
}

func TestClientCredentialsIssuer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "uma_protection", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "pat-xyz",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	issuer := NewClientCredentialsIssuer(server.URL, "rs-client", server.Client())
	tok, err := issuer.RequestPAT(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "pat-xyz", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.False(t, tok.Expiry.IsZero())
}

func TestClientCredentialsIssuerRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "pat-retry", "expires_in": 60})
	}))
	defer server.Close()

	issuer := NewClientCredentialsIssuer(server.URL, "rs-client", server.Client())
	tok, err := issuer.RequestPAT(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "pat-retry", tok.AccessToken)
	assert.Equal(t, int64(2), calls.Load())
}

func TestClientCredentialsIssuerDoesNotRetryRejections(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	issuer := NewClientCredentialsIssuer(server.URL, "rs-client", server.Client())
	_, err := issuer.RequestPAT(context.Background())
	require.Error(t, err)

	assert.Equal(t, int64(1), calls.Load())
}
