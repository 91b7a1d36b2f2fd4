package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/onnwee/highlight-tender/backend/config"
	"github.com/onnwee/highlight-tender/backend/dataset"
	"github.com/onnwee/highlight-tender/backend/highlight"
	"github.com/onnwee/highlight-tender/backend/predict"
	"github.com/onnwee/highlight-tender/backend/token"
)

const testSecret = "server-test-secret"

// stubAcquirer serves fixed chat data per video id, as if cached locally.
type stubAcquirer struct {
	data map[int64]*dataset.ChatData
}

func (s *stubAcquirer) GetChatData(ctx context.Context, videoID int64) (*dataset.ChatData, error) {
	d, ok := s.data[videoID]
	if !ok {
		return nil, dataset.ErrNotFound
	}
	return d, nil
}

// memVotes is an in-memory highlight.VoteStore.
type memVotes struct {
	votes map[string]highlight.VoteType
}

func votesKey(userID, videoID int64, start, end int) string {
	return fmt.Sprintf("%d/%d/%d-%d", userID, videoID, start, end)
}

func (m *memVotes) EnsureVideo(ctx context.Context, videoID int64, durationS int) error { return nil }

func (m *memVotes) Upvote(ctx context.Context, userID, videoID int64, start, end int) (string, error) {
	m.votes[votesKey(userID, videoID, start, end)] = highlight.VoteUp
	return "Upvoted this highlight video", nil
}

func (m *memVotes) Downvote(ctx context.Context, userID, videoID int64, start, end int) (string, error) {
	m.votes[votesKey(userID, videoID, start, end)] = highlight.VoteDown
	return "Downvoted this highlight video", nil
}

func (m *memVotes) RemoveVote(ctx context.Context, userID, videoID int64, start, end int) (string, error) {
	delete(m.votes, votesKey(userID, videoID, start, end))
	return "Removed from voted videos", nil
}

func (m *memVotes) State(ctx context.Context, userID, videoID int64, candidates []highlight.RangeKey) (map[highlight.RangeKey]highlight.VoteState, error) {
	out := make(map[highlight.RangeKey]highlight.VoteState, len(candidates))
	for _, c := range candidates {
		vt, ok := m.votes[votesKey(userID, videoID, c.Start, c.End)]
		out[c] = highlight.VoteState{
			Upvoted:   ok && vt == highlight.VoteUp,
			Downvoted: ok && vt == highlight.VoteDown,
		}
	}
	return out, nil
}

// chatCluster synthesizes a dataset whose message density peaks in
// [peakStart, peakStart+45), one message every other second, plus sparse noise.
func chatCluster(videoID int64, duration, peakStart int) *dataset.ChatData {
	data := &dataset.ChatData{VideoID: videoID, Duration: duration}
	for s := peakStart; s < peakStart+45; s += 2 {
		data.Records = append(data.Records, dataset.Record{Username: "chatter", Text: "PogChamp", Offset: float64(s)})
	}
	for s := 0; s < duration; s += 5000 {
		data.Records = append(data.Records, dataset.Record{Username: "lurker", Text: "hi", Offset: float64(s)})
	}
	return data
}

func newTestMux(t *testing.T, acq highlight.Acquirer) (http.Handler, *memVotes) {
	t.Helper()
	codec, err := token.NewCodec([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	votes := &memVotes{votes: make(map[string]highlight.VoteType)}
	svc := highlight.NewService(acq, &predict.RateWindow{}, codec, votes, 10)
	cfg := config.Config{Secret: testSecret, DefaultHighlights: 3, MaxHighlights: 10}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewMux(ctx, cfg, nil, svc), votes
}

func mintUserToken(t *testing.T, userID int64) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign user token: %v", err)
	}
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestHighlightsRequiresAuth(t *testing.T) {
	h, _ := newTestMux(t, &stubAcquirer{data: map[int64]*dataset.ChatData{}})

	req := httptest.NewRequest(http.MethodGet, "/v1/twitch/123", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/twitch/123", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", rec.Code)
	}
}

func TestHighlightsUnknownVideo(t *testing.T) {
	h, _ := newTestMux(t, &stubAcquirer{data: map[int64]*dataset.ChatData{}})
	rec, body := doJSON(t, h, http.MethodGet, "/v1/twitch/999", mintUserToken(t, 7), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var notice string
	if err := json.Unmarshal(body["notice"], &notice); err != nil || notice != "Highlighter is not yet supported for this video" {
		t.Errorf("notice = %q (%v)", notice, err)
	}
}

func TestHighlightsInvalidLimit(t *testing.T) {
	h, _ := newTestMux(t, &stubAcquirer{data: map[int64]*dataset.ChatData{
		123: chatCluster(123, 3600, 500),
	}})
	for _, limit := range []string{"0", "-2"} {
		rec, _ := doJSON(t, h, http.MethodGet, "/v1/twitch/123?limit="+limit, mintUserToken(t, 7), nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestVoteUnknownAction(t *testing.T) {
	h, _ := newTestMux(t, &stubAcquirer{data: map[int64]*dataset.ChatData{
		123: chatCluster(123, 3600, 500),
	}})
	user := mintUserToken(t, 7)
	rec, body := doJSON(t, h, http.MethodGet, "/v1/twitch/123?limit=1", user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query status = %d: %v", rec.Code, body)
	}
	var highlights []highlightView
	if err := json.Unmarshal(body["highlights"], &highlights); err != nil || len(highlights) == 0 {
		t.Fatalf("highlights = %v (%v)", highlights, err)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/v1/twitch/vote/sidevote", user, voteRequest{ID: highlights[0].ID})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown action: status = %d, want 404", rec.Code)
	}
}

func TestVoteRejectsBadToken(t *testing.T) {
	h, _ := newTestMux(t, &stubAcquirer{data: map[int64]*dataset.ChatData{}})
	rec, _ := doJSON(t, h, http.MethodPost, "/v1/twitch/vote/upvote", mintUserToken(t, 7), voteRequest{ID: "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus highlight id: status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/v1/twitch/vote/upvote", mintUserToken(t, 7), map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty id: status = %d, want 400", rec.Code)
	}
}

// TestQueryVoteRoundTrip walks the full API flow: query a cached video, upvote
// the returned highlight with its token, then observe the vote on a re-query.
func TestQueryVoteRoundTrip(t *testing.T) {
	const videoID = 782734234
	h, _ := newTestMux(t, &stubAcquirer{data: map[int64]*dataset.ChatData{
		videoID: chatCluster(videoID, 34093, 1905),
	}})
	user := mintUserToken(t, 7)

	rec, body := doJSON(t, h, http.MethodGet, "/v1/twitch/782734234?limit=1", user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query status = %d: %v", rec.Code, body)
	}
	var view queryView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode query response: %v", err)
	}
	if view.ID != videoID || view.Duration != 34093 {
		t.Errorf("video header = {%d %d}, want {782734234 34093}", view.ID, view.Duration)
	}
	if len(view.Highlights) != 1 {
		t.Fatalf("got %d highlights, want 1", len(view.Highlights))
	}
	hl := view.Highlights[0]
	if hl.Start != 1905 || hl.End != 1955 {
		t.Errorf("highlight range = [%d,%d], want [1905,1955]", hl.Start, hl.End)
	}
	if hl.Upvoted || hl.Downvoted {
		t.Errorf("fresh highlight already voted: %+v", hl)
	}

	rec, body = doJSON(t, h, http.MethodPost, "/v1/twitch/vote/upvote", user, voteRequest{ID: hl.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("vote status = %d: %v", rec.Code, body)
	}
	var notice string
	if err := json.Unmarshal(body["notice"], &notice); err != nil || notice != "Upvoted this highlight video" {
		t.Errorf("notice = %q (%v)", notice, err)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/v1/twitch/782734234?limit=1", user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("re-query status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode re-query response: %v", err)
	}
	if len(view.Highlights) != 1 || !view.Highlights[0].Upvoted {
		t.Errorf("re-query highlights = %+v, want the range upvoted", view.Highlights)
	}

	// Another user sees the same range without the first user's vote.
	rec, _ = doJSON(t, h, http.MethodGet, "/v1/twitch/782734234?limit=1", mintUserToken(t, 8), nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode other-user response: %v", err)
	}
	if len(view.Highlights) != 1 || view.Highlights[0].Upvoted {
		t.Errorf("other user's view = %+v, want no vote flags", view.Highlights)
	}
}
