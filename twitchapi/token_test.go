package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func newTokenServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token-" + string(rune('0'+n)),
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTokenSource_GetCached(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls)

	ts := &TokenSource{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		TokenURL:     server.URL,
	}
	ctx := context.Background()

	token1, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token1 == "" {
		t.Fatal("Get() returned empty token")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 issuance call, got %d", calls)
	}

	token2, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token2 != token1 {
		t.Errorf("cached token = %s, want %s", token2, token1)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected still 1 issuance call (cached), got %d", calls)
	}
}

func TestTokenSource_ConcurrentFirstUse(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls)

	ts := &TokenSource{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		TokenURL:     server.URL,
	}

	const n = 16
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = ts.Get(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Get() error at %d: %v", i, errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Errorf("caller %d got %s, want %s", i, tokens[i], tokens[0])
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly 1 issuance call for concurrent first use, got %d", calls)
	}
}

func TestTokenSource_Invalidate(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls)

	ts := &TokenSource{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		TokenURL:     server.URL,
	}
	ctx := context.Background()

	token1, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	ts.Invalidate()
	token2, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() after Invalidate error = %v", err)
	}
	if token2 == token1 {
		t.Errorf("expected a fresh token after Invalidate, got the same value")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 issuance calls, got %d", calls)
	}
}

func TestTokenSource_MissingCreds(t *testing.T) {
	ts := &TokenSource{}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Errorf("expected error when client id/secret missing")
	}
}
