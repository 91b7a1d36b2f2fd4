package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// PostgresStore persists chat datasets into chat_datasets + chat_messages.
type PostgresStore struct {
	DB *sql.DB
}

// Get loads a stored dataset, or (nil, nil) when the video has never been fetched.
func (s *PostgresStore) Get(ctx context.Context, videoID int64) (*ChatData, error) {
	var duration int
	err := s.DB.QueryRowContext(ctx,
		`SELECT duration_seconds FROM chat_datasets WHERE video_id=$1`, videoID).Scan(&duration)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset header: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, `
        SELECT COALESCE(username, ''), COALESCE(message, ''), rel_timestamp
        FROM chat_messages
        WHERE video_id=$1
        ORDER BY rel_timestamp
    `, videoID)
	if err != nil {
		return nil, fmt.Errorf("load dataset messages: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()

	data := &ChatData{VideoID: videoID, Duration: duration}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Username, &r.Text, &r.Offset); err != nil {
			return nil, fmt.Errorf("scan dataset message: %w", err)
		}
		data.Records = append(data.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset messages: %w", err)
	}
	return data, nil
}

// Put stores a complete dataset in one transaction. On conflict the existing
// dataset wins; a concurrent fetch of the same video is not an error.
func (s *PostgresStore) Put(ctx context.Context, data *ChatData) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dataset tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			slog.Warn("failed to roll back dataset tx", slog.Any("err", err))
		}
	}()

	res, err := tx.ExecContext(ctx, `
        INSERT INTO chat_datasets(video_id, duration_seconds)
        VALUES ($1, $2)
        ON CONFLICT (video_id) DO NOTHING
    `, data.VideoID, data.Duration)
	if err != nil {
		return fmt.Errorf("insert dataset header: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Someone else stored this video first; keep theirs.
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (video_id, username, message, rel_timestamp) VALUES ($1,$2,$3,$4)`)
	if err != nil {
		return fmt.Errorf("prepare insert message: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			slog.Warn("failed to close prepared statement", slog.Any("err", err))
		}
	}()
	for _, r := range data.Records {
		if _, err := stmt.ExecContext(ctx, data.VideoID, r.Username, r.Text, r.Offset); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dataset tx: %w", err)
	}
	return nil
}
