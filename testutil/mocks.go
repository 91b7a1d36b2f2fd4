package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch API responses:
// the OAuth token endpoint, Helix videos, and the chat replay endpoint.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// TokenURL returns the mock OAuth token endpoint.
func (m *MockTwitchServer) TokenURL() string { return m.URL + "/oauth2/token" }

// ReplayURL returns the mock chat replay endpoint.
func (m *MockTwitchServer) ReplayURL() string { return m.URL + "/rechat-messages" }

// MockOAuthTokenResponse adds a handler for the OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockVideosResponse adds a handler for the /videos Helix endpoint serving one
// video with the given id and duration string (Helix format, e.g. "1h2m3s").
func (m *MockTwitchServer) MockVideosResponse(videoID int64, duration string) {
	m.Handlers["/videos"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != strconv.FormatInt(videoID, 10) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}}) //nolint:errcheck // test mock response
			return
		}
		response := map[string]interface{}{
			"data": []map[string]string{
				{"id": strconv.FormatInt(videoID, 10), "duration": duration},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockReplayResponse adds a handler for the chat replay endpoint. Each request
// is answered with a page of messages generated by page(offset).
func (m *MockTwitchServer) MockReplayResponse(page func(offset int) []ReplayMessage) {
	m.Handlers["/rechat-messages"] = func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		msgs := page(offset)
		data := make([]map[string]interface{}, 0, len(msgs))
		for _, msg := range msgs {
			data = append(data, map[string]interface{}{
				"attributes": map[string]interface{}{
					"id":     msg.ID,
					"offset": msg.Offset,
					"message": map[string]interface{}{
						"body": msg.Text,
						"user": map[string]string{"displayName": msg.Username},
					},
				},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data}) //nolint:errcheck // test mock response
	}
}

// ReplayMessage is one chat message served by MockReplayResponse.
type ReplayMessage struct {
	ID       string
	Username string
	Text     string
	Offset   float64
}

// SequentialReplayPage returns a page function serving one message per page,
// timestamped at the page offset.
func SequentialReplayPage() func(offset int) []ReplayMessage {
	return func(offset int) []ReplayMessage {
		return []ReplayMessage{{
			ID:       fmt.Sprintf("msg-%d", offset),
			Username: "chatter",
			Text:     fmt.Sprintf("message at %d", offset),
			Offset:   float64(offset),
		}}
	}
}
