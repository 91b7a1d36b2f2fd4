// Package twitchapi contains the Twitch API clients used for chat data acquisition:
// an app access token cache and helpers for video metadata and chat replay pages.
package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource fetches and caches a Twitch app access (client credentials) token
// for the life of the process. The first caller populates the cache; subsequent
// callers get the cached value. Invalidate discards the cached token so the next
// Get refetches (used after the API rejects a credential).
type TokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	HTTPClient   *http.Client

	mu    sync.Mutex
	token string
}

const defaultTokenURL = "https://id.twitch.tv/oauth2/token"

// Get returns the cached app access token, fetching it on first use.
// Concurrent first-time callers serialize on the cache lock so exactly one
// issuance call is made.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" {
		return ts.token, nil
	}
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", errors.New("missing client id/secret for twitch app token")
	}
	tokenURL := ts.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     tokenURL,
	}
	fetchCtx := ctx
	if ts.HTTPClient != nil {
		fetchCtx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	tok, err := cc.Token(fetchCtx)
	if err != nil {
		return "", fmt.Errorf("twitch token request failed: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access_token in twitch response")
	}
	ts.token = tok.AccessToken
	return ts.token, nil
}

// Invalidate discards the cached token. The next Get fetches a fresh one.
// Called when the API answers 401, so a revoked credential is replaced
// instead of being retried forever.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.mu.Unlock()
}
