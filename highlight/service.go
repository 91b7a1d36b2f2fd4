package highlight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/highlight-tender/backend/dataset"
	"github.com/onnwee/highlight-tender/backend/telemetry"
	"github.com/onnwee/highlight-tender/backend/token"
)

var (
	// ErrInvalidLimit rejects non-positive limits. Values above the configured
	// maximum are clamped instead.
	ErrInvalidLimit = errors.New("limit must be positive")
	// ErrUnknownAction rejects vote actions outside upvote/downvote/removevote.
	ErrUnknownAction = errors.New("unknown vote action")
)

// Vote actions accepted on the wire.
const (
	ActionUpvote     = "upvote"
	ActionDownvote   = "downvote"
	ActionRemoveVote = "removevote"
)

const defaultMaxLimit = 10

// Acquirer yields chat data for a video (dataset.Acquirer in production).
type Acquirer interface {
	GetChatData(ctx context.Context, videoID int64) (*dataset.ChatData, error)
}

// VoteStore is the persistence surface the service votes through (*Votes in production).
type VoteStore interface {
	EnsureVideo(ctx context.Context, videoID int64, durationS int) error
	Upvote(ctx context.Context, userID, videoID int64, start, end int) (string, error)
	Downvote(ctx context.Context, userID, videoID int64, start, end int) (string, error)
	RemoveVote(ctx context.Context, userID, videoID int64, start, end int) (string, error)
	State(ctx context.Context, userID, videoID int64, candidates []RangeKey) (map[RangeKey]VoteState, error)
}

// Highlight is one entry of a query response: the capability token plus the
// candidate's bounds, probability, and the user's current vote flags.
type Highlight struct {
	Token       string
	Start       int
	End         int
	Probability float64
	Upvoted     bool
	Downvoted   bool
}

// QueryResult is the full answer for one video.
type QueryResult struct {
	VideoID    int64
	Duration   int
	Highlights []Highlight
}

// Service orchestrates a highlight query: acquire chat data, predict candidate
// ranges, mint capability tokens, and decorate with vote state. It also applies
// votes submitted back with those tokens.
type Service struct {
	Acquirer  Acquirer
	Predictor Predictor
	Codec     *token.Codec
	Votes     VoteStore
	MaxLimit  int

	now func() time.Time
}

// NewService wires a Service with defaults applied.
func NewService(acq Acquirer, pred Predictor, codec *token.Codec, votes VoteStore, maxLimit int) *Service {
	telemetry.Init()
	if maxLimit <= 0 {
		maxLimit = defaultMaxLimit
	}
	return &Service{
		Acquirer:  acq,
		Predictor: pred,
		Codec:     codec,
		Votes:     votes,
		MaxLimit:  maxLimit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Query returns up to limit highlight candidates for videoID, each carrying a
// token minted for userID. limit is clamped to [1, MaxLimit]; non-positive
// limits are rejected with ErrInvalidLimit. Returns dataset.ErrNotFound when
// the video has no acquirable chat data.
func (s *Service) Query(ctx context.Context, userID, videoID int64, limit int) (*QueryResult, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if limit > s.MaxLimit {
		limit = s.MaxLimit
	}

	telemetry.HighlightQueries.Inc()

	data, err := s.Acquirer.GetChatData(ctx, videoID)
	if err != nil {
		if !errors.Is(err, dataset.ErrNotFound) {
			telemetry.HighlightQueryErrors.Inc()
		}
		return nil, err
	}

	if err := s.Votes.EnsureVideo(ctx, data.VideoID, data.Duration); err != nil {
		telemetry.HighlightQueryErrors.Inc()
		return nil, err
	}

	var candidates []Candidate
	var predictErr error
	telemetry.TimeFunc(telemetry.PredictDuration, func() {
		candidates, predictErr = s.Predictor.Predict(ctx, data, limit)
	})
	if predictErr != nil {
		telemetry.HighlightQueryErrors.Inc()
		return nil, fmt.Errorf("predict highlight ranges: %w", predictErr)
	}

	keys := make([]RangeKey, 0, len(candidates))
	for _, c := range candidates {
		keys = append(keys, RangeKey{Start: c.Start, End: c.End})
	}
	state, err := s.Votes.State(ctx, userID, data.VideoID, keys)
	if err != nil {
		telemetry.HighlightQueryErrors.Inc()
		return nil, err
	}

	now := s.now()
	result := &QueryResult{VideoID: data.VideoID, Duration: data.Duration, Highlights: make([]Highlight, 0, len(candidates))}
	for _, c := range candidates {
		tok, err := s.Codec.Mint(userID, data.VideoID, c.Start, c.End, now)
		if err != nil {
			telemetry.HighlightQueryErrors.Inc()
			return nil, err
		}
		st := state[RangeKey{Start: c.Start, End: c.End}]
		result.Highlights = append(result.Highlights, Highlight{
			Token:       tok,
			Start:       c.Start,
			End:         c.End,
			Probability: c.Probability,
			Upvoted:     st.Upvoted,
			Downvoted:   st.Downvoted,
		})
	}
	return result, nil
}

// Vote verifies the capability token on behalf of userID and applies the
// action to the encoded range. Token failures pass through as the token
// package's sentinel errors; unknown actions fail with ErrUnknownAction.
func (s *Service) Vote(ctx context.Context, userID int64, action, tokenStr string) (string, error) {
	payload, err := s.Codec.Verify(tokenStr, userID, s.now())
	if err != nil {
		telemetry.TokenVerifyFailures.Inc()
		return "", err
	}

	var notice string
	switch action {
	case ActionUpvote:
		notice, err = s.Votes.Upvote(ctx, userID, payload.VideoID, payload.Start, payload.End)
	case ActionDownvote:
		notice, err = s.Votes.Downvote(ctx, userID, payload.VideoID, payload.Start, payload.End)
	case ActionRemoveVote:
		notice, err = s.Votes.RemoveVote(ctx, userID, payload.VideoID, payload.Start, payload.End)
	default:
		return "", ErrUnknownAction
	}
	if err != nil {
		return "", err
	}
	telemetry.VotesCast.WithLabelValues(action).Inc()
	return notice, nil
}
