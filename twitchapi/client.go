package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrVideoNotFound indicates Twitch has no video for the requested id.
var ErrVideoNotFound = errors.New("twitch video not found")

// ChatMessage is one chat replay message with its offset from video start in seconds.
type ChatMessage struct {
	ID       string
	Username string
	Text     string
	Offset   float64
}

// Client provides the minimal Twitch surface needed for acquisition:
// resolving a video's duration via Helix and fetching chat replay windows.
type Client struct {
	TokenSource *TokenSource
	ClientID    string
	HTTPClient  *http.Client

	// HelixURL and ReplayURL override the production endpoints in tests.
	HelixURL  string
	ReplayURL string
}

const (
	defaultHelixURL  = "https://api.twitch.tv/helix"
	defaultReplayURL = "https://rechat.twitch.tv/rechat-messages"

	// replayPageSeconds is the window size the replay API serves per request.
	replayPageSeconds = 30
)

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) helixURL() string {
	if c.HelixURL != "" {
		return c.HelixURL
	}
	return defaultHelixURL
}

func (c *Client) replayURL() string {
	if c.ReplayURL != "" {
		return c.ReplayURL
	}
	return defaultReplayURL
}

// VideoDuration resolves a video id to its duration in seconds.
// A 401 from Helix invalidates the cached app token and retries once.
func (c *Client) VideoDuration(ctx context.Context, videoID int64) (int, error) {
	d, err := c.videoDuration(ctx, videoID)
	if err == nil || !errors.Is(err, errUnauthorized) {
		return d, err
	}
	c.TokenSource.Invalidate()
	return c.videoDuration(ctx, videoID)
}

var errUnauthorized = errors.New("twitch api unauthorized")

func (c *Client) videoDuration(ctx context.Context, videoID int64) (int, error) {
	tok, err := c.TokenSource.Get(ctx)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.helixURL()+"/videos", nil)
	if err != nil {
		return 0, err
	}
	q := req.URL.Query()
	q.Set("id", strconv.FormatInt(videoID, 10))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := c.http().Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return 0, errUnauthorized
	case http.StatusNotFound:
		return 0, ErrVideoNotFound
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, fmt.Errorf("helix videos status %d: %s", resp.StatusCode, string(b))
	}
	var body struct {
		Data []struct {
			ID       string `json:"id"`
			Duration string `json:"duration"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	if len(body.Data) == 0 {
		return 0, ErrVideoNotFound
	}
	d, err := time.ParseDuration(body.Data[0].Duration)
	if err != nil {
		return 0, fmt.Errorf("parse video duration %q: %w", body.Data[0].Duration, err)
	}
	return int(d.Seconds()), nil
}

// ChatWindow fetches all chat replay messages with offsets in [startSec, endSec).
// The replay API pages in 30s windows; pages are requested sequentially within
// the window so a single caller stays polite, while separate windows are fetched
// concurrently by the acquirer.
func (c *Client) ChatWindow(ctx context.Context, videoID int64, startSec, endSec int) ([]ChatMessage, error) {
	var out []ChatMessage
	seen := make(map[string]struct{})
	for offset := startSec; offset < endSec; offset += replayPageSeconds {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		msgs, err := c.fetchReplayPage(ctx, videoID, offset)
		if err != nil {
			return nil, fmt.Errorf("replay page at offset %d: %w", offset, err)
		}
		for _, m := range msgs {
			if m.Offset < float64(startSec) || m.Offset >= float64(endSec) {
				continue
			}
			if m.ID != "" {
				if _, ok := seen[m.ID]; ok {
					continue
				}
				seen[m.ID] = struct{}{}
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Client) fetchReplayPage(ctx context.Context, videoID int64, offset int) ([]ChatMessage, error) {
	u := fmt.Sprintf("%s?video_id=%s&offset=%d", c.replayURL(), url.QueryEscape(strconv.FormatInt(videoID, 10)), offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "highlight-tender/1.0 (+https://github.com/onnwee/highlight-tender)")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("replay status %d: %s", resp.StatusCode, string(b))
	}
	var raw struct {
		Data []struct {
			Attributes struct {
				ID      string  `json:"id"`
				Offset  float64 `json:"offset"`
				Message struct {
					Body string `json:"body"`
					User struct {
						UserLogin   string `json:"userLogin"`
						DisplayName string `json:"displayName"`
					} `json:"user"`
				} `json:"message"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]ChatMessage, 0, len(raw.Data))
	for _, d := range raw.Data {
		a := d.Attributes
		user := a.Message.User.DisplayName
		if user == "" {
			user = a.Message.User.UserLogin
		}
		out = append(out, ChatMessage{
			ID:       a.ID,
			Username: user,
			Text:     a.Message.Body,
			Offset:   a.Offset,
		})
	}
	return out, nil
}
