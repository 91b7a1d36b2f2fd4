// Package dataset acquires per-video chat datasets: a local Postgres store is
// the cache of record, and misses are filled by a concurrent fetch against the
// Twitch chat replay API, coalesced per video id.
package dataset

import (
	"context"
	"errors"
)

// ErrNotFound indicates no chat data is available for the video: it does not
// exist upstream, or its duration exceeds the acquisition ceiling.
var ErrNotFound = errors.New("chat data not found")

// Record is one timestamped chat message used as predictor input.
type Record struct {
	Username string
	Text     string
	Offset   float64 // seconds from video start
}

// ChatData is the per-video dataset handed to the predictor.
type ChatData struct {
	VideoID  int64
	Duration int // seconds
	Records  []Record
}

// Store is the local dataset store. Get returns (nil, nil) on a miss.
// Put persists a complete dataset atomically; a partially stored dataset
// must never be observable.
type Store interface {
	Get(ctx context.Context, videoID int64) (*ChatData, error)
	Put(ctx context.Context, data *ChatData) error
}

// Source is the external origin of chat data.
type Source interface {
	// VideoDuration reports the video's duration in seconds.
	VideoDuration(ctx context.Context, videoID int64) (int, error)
	// ChatWindow fetches records with offsets in [startSec, endSec).
	ChatWindow(ctx context.Context, videoID int64, startSec, endSec int) ([]Record, error)
}
