// Package highlight implements the highlight range domain: vote aggregation,
// the predictor contract, and the query/vote use cases.
package highlight

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// VoteType is the closed set of vote kinds. Values match the vote_type column.
type VoteType string

const (
	VoteUp   VoteType = "UP"
	VoteDown VoteType = "DOWN"
)

// Vote confirmation notices returned to clients.
const (
	noticeUpvoted         = "Upvoted this highlight video"
	noticeDownvoted       = "Downvoted this highlight video"
	noticeRemovedUpvote   = "Removed from upvoted videos"
	noticeRemovedDownvote = "Removed from downvoted videos"
	noticeRemovedNone     = "Removed from voted videos"
)

// VoteState reports a user's current vote on one range.
type VoteState struct {
	Upvoted   bool
	Downvoted bool
}

// RangeKey identifies a highlight range within a video by its bounds.
type RangeKey struct {
	Start int
	End   int
}

// Votes persists highlight ranges and user votes. Ranges are created lazily on
// first vote; at most one vote row exists per (user, range), enforced by a
// uniqueness constraint plus atomic upserts.
type Votes struct {
	DB *sql.DB
}

// EnsureVideo upserts the video row. The freshly observed duration wins over a
// previously stored one.
func (v *Votes) EnsureVideo(ctx context.Context, videoID int64, durationS int) error {
	_, err := v.DB.ExecContext(ctx, `
        INSERT INTO videos(id, duration_seconds)
        VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE SET duration_seconds=EXCLUDED.duration_seconds, updated_at=NOW()
    `, videoID, durationS)
	if err != nil {
		return fmt.Errorf("upsert video %d: %w", videoID, err)
	}
	return nil
}

// getOrCreateRange returns the id of the range row for (videoID, start, end),
// inserting it if absent. The DO UPDATE no-op makes RETURNING yield the id on
// both paths, so concurrent callers race safely.
func (v *Votes) getOrCreateRange(ctx context.Context, videoID int64, start, end int) (int64, error) {
	var id int64
	err := v.DB.QueryRowContext(ctx, `
        INSERT INTO highlight_ranges(video_id, start_seconds, end_seconds)
        VALUES ($1, $2, $3)
        ON CONFLICT (video_id, start_seconds, end_seconds) DO UPDATE SET video_id=EXCLUDED.video_id
        RETURNING id
    `, videoID, start, end).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get-or-create range (%d,%d,%d): %w", videoID, start, end, err)
	}
	return id, nil
}

// Upvote records an UP vote for the user on the range, creating the range if
// needed and overwriting any prior vote type. Idempotent.
func (v *Votes) Upvote(ctx context.Context, userID, videoID int64, start, end int) (string, error) {
	if err := v.vote(ctx, userID, videoID, start, end, VoteUp); err != nil {
		return "", err
	}
	return noticeUpvoted, nil
}

// Downvote records a DOWN vote, symmetric to Upvote.
func (v *Votes) Downvote(ctx context.Context, userID, videoID int64, start, end int) (string, error) {
	if err := v.vote(ctx, userID, videoID, start, end, VoteDown); err != nil {
		return "", err
	}
	return noticeDownvoted, nil
}

func (v *Votes) vote(ctx context.Context, userID, videoID int64, start, end int, vt VoteType) error {
	rangeID, err := v.getOrCreateRange(ctx, videoID, start, end)
	if err != nil {
		return err
	}
	_, err = v.DB.ExecContext(ctx, `
        INSERT INTO user_votes(user_id, highlight_range_id, vote_type)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, highlight_range_id) DO UPDATE SET vote_type=EXCLUDED.vote_type, updated_at=NOW()
    `, userID, rangeID, string(vt))
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

// RemoveVote deletes the user's vote on the range if one exists. Removal is
// idempotent: with no prior vote it still succeeds with a generic notice.
func (v *Votes) RemoveVote(ctx context.Context, userID, videoID int64, start, end int) (string, error) {
	rangeID, err := v.getOrCreateRange(ctx, videoID, start, end)
	if err != nil {
		return "", err
	}
	var vt string
	err = v.DB.QueryRowContext(ctx, `
        DELETE FROM user_votes
        WHERE user_id=$1 AND highlight_range_id=$2
        RETURNING vote_type
    `, userID, rangeID).Scan(&vt)
	if err == sql.ErrNoRows {
		return noticeRemovedNone, nil
	}
	if err != nil {
		return "", fmt.Errorf("delete vote: %w", err)
	}
	switch VoteType(vt) {
	case VoteUp:
		return noticeRemovedUpvote, nil
	case VoteDown:
		return noticeRemovedDownvote, nil
	default:
		return noticeRemovedNone, nil
	}
}

// State bulk-loads the user's vote flags for the given candidate ranges of one
// video. Candidates never persisted are reported as {false, false}.
func (v *Votes) State(ctx context.Context, userID, videoID int64, candidates []RangeKey) (map[RangeKey]VoteState, error) {
	out := make(map[RangeKey]VoteState, len(candidates))
	for _, c := range candidates {
		out[c] = VoteState{}
	}
	if len(candidates) == 0 {
		return out, nil
	}

	rows, err := v.DB.QueryContext(ctx, `
        SELECT hr.start_seconds, hr.end_seconds, uv.vote_type
        FROM highlight_ranges hr
        JOIN user_votes uv ON uv.highlight_range_id = hr.id AND uv.user_id = $2
        WHERE hr.video_id = $1
    `, videoID, userID)
	if err != nil {
		return nil, fmt.Errorf("load vote state: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	for rows.Next() {
		var key RangeKey
		var vt string
		if err := rows.Scan(&key.Start, &key.End, &vt); err != nil {
			return nil, fmt.Errorf("scan vote state: %w", err)
		}
		if _, ok := out[key]; !ok {
			continue
		}
		out[key] = VoteState{Upvoted: VoteType(vt) == VoteUp, Downvoted: VoteType(vt) == VoteDown}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote state: %w", err)
	}
	return out, nil
}
