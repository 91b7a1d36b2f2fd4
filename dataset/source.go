package dataset

import (
	"context"
	"errors"

	"github.com/onnwee/highlight-tender/backend/twitchapi"
)

// TwitchSource adapts twitchapi.Client to the Source interface.
type TwitchSource struct {
	Client *twitchapi.Client
}

func (s *TwitchSource) VideoDuration(ctx context.Context, videoID int64) (int, error) {
	d, err := s.Client.VideoDuration(ctx, videoID)
	if errors.Is(err, twitchapi.ErrVideoNotFound) {
		return 0, ErrNotFound
	}
	return d, err
}

func (s *TwitchSource) ChatWindow(ctx context.Context, videoID int64, startSec, endSec int) ([]Record, error) {
	msgs, err := s.Client.ChatWindow(ctx, videoID, startSec, endSec)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Record{Username: m.Username, Text: m.Text, Offset: m.Offset})
	}
	return out, nil
}
