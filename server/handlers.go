// Package server exposes the HTTP API: highlight queries and votes under
// /v1/twitch, plus health probes and metrics. It applies bearer-token
// authentication, permissive CORS for development, and injects correlation
// IDs into request contexts for consistent logging.
package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/highlight-tender/backend/dataset"
	"github.com/onnwee/highlight-tender/backend/highlight"
	"github.com/onnwee/highlight-tender/backend/telemetry"
	"github.com/onnwee/highlight-tender/backend/token"
)

const notSupportedNotice = "Highlighter is not yet supported for this video"

// defaultLimit is the number of highlights returned when the client does not
// ask for a specific count.
const defaultLimit = 3

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db           *sql.DB
	svc          *highlight.Service
	defaultLimit int
}

// NewHandlers creates a Handlers instance with the given dependencies.
// A non-positive defaultLimit falls back to 3.
func NewHandlers(db *sql.DB, svc *highlight.Service, defLimit int) *Handlers {
	if defLimit <= 0 {
		defLimit = defaultLimit
	}
	return &Handlers{db: db, svc: svc, defaultLimit: defLimit}
}

// highlightView is the wire form of one highlight. The range token doubles as
// the highlight's id.
type highlightView struct {
	ID          string  `json:"id"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Probability float64 `json:"probability"`
	Upvoted     bool    `json:"upvoted"`
	Downvoted   bool    `json:"downvoted"`
}

type queryView struct {
	ID         int64           `json:"id"`
	Duration   int             `json:"duration"`
	Highlights []highlightView `json:"highlights"`
}

// HandleHighlights serves GET /v1/twitch/{videoId}?limit=n.
func (h *Handlers) HandleHighlights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "Method Not Allowed"})
		return
	}
	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	rawID := strings.TrimPrefix(r.URL.Path, "/v1/twitch/")
	videoID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || videoID <= 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found", "notice": notSupportedNotice})
		return
	}
	limit := parseIntQuery(r, "limit", h.defaultLimit)

	res, err := h.svc.Query(r.Context(), userID, videoID, limit)
	switch {
	case errors.Is(err, highlight.ErrInvalidLimit):
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "limit must be a positive integer"})
		return
	case errors.Is(err, dataset.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found", "notice": notSupportedNotice})
		return
	case err != nil:
		telemetry.LoggerWithCorr(r.Context()).Error("highlight query failed",
			slog.Int64("video_id", videoID), slog.Any("err", err), slog.String("component", "http"))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Internal Server Error"})
		return
	}

	view := queryView{ID: res.VideoID, Duration: res.Duration, Highlights: make([]highlightView, 0, len(res.Highlights))}
	for _, hl := range res.Highlights {
		view.Highlights = append(view.Highlights, highlightView{
			ID:          hl.Token,
			Start:       hl.Start,
			End:         hl.End,
			Probability: hl.Probability,
			Upvoted:     hl.Upvoted,
			Downvoted:   hl.Downvoted,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

// voteRequest is the body of POST /v1/twitch/vote/{action}: the highlight id
// issued by a previous query.
type voteRequest struct {
	ID string `json:"id"`
}

// HandleVote serves POST /v1/twitch/vote/{action} with action one of upvote,
// downvote, removevote.
func (h *Handlers) HandleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "Method Not Allowed"})
		return
	}
	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	action := strings.TrimPrefix(r.URL.Path, "/v1/twitch/vote/")
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "request body must be JSON with a non-empty id"})
		return
	}

	notice, err := h.svc.Vote(r.Context(), userID, action, req.ID)
	switch {
	case errors.Is(err, highlight.ErrUnknownAction):
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
		return
	case errors.Is(err, token.ErrExpired), errors.Is(err, token.ErrAudienceMismatch), errors.Is(err, token.ErrInvalidToken):
		// Deliberately generic: clients get no oracle on why a token failed.
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid highlight id"})
		return
	case err != nil:
		telemetry.LoggerWithCorr(r.Context()).Error("vote failed",
			slog.String("action", action), slog.Any("err", err), slog.String("component", "http"))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Internal Server Error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"notice": notice})
}
