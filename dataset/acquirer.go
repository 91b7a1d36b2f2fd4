package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/onnwee/highlight-tender/backend/telemetry"
)

// ErrFetchFailed indicates at least one worker slice failed during a live fetch.
// No partial data is stored; callers may retry the whole operation.
var ErrFetchFailed = fmt.Errorf("chat fetch failed")

const (
	defaultConcurrency  = 10
	defaultMaxDurationS = 18000 // 5 hours
)

// Acquirer returns a video's chat data from the local store, or fetches it from
// the source using a bounded pool of slice workers. Concurrent requests for the
// same uncached video coalesce onto one in-flight fetch.
type Acquirer struct {
	Store  Store
	Source Source

	// Concurrency is the number of worker slices per fetch. Default 10.
	Concurrency int
	// MaxDurationS is the acquisition ceiling in seconds; longer videos are
	// reported as not found. Default 18000 (5 hours).
	MaxDurationS int

	flight singleflight.Group
}

// NewAcquirer wires an Acquirer with defaults applied.
func NewAcquirer(store Store, src Source, concurrency, maxDurationS int) *Acquirer {
	telemetry.Init()
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if maxDurationS <= 0 {
		maxDurationS = defaultMaxDurationS
	}
	return &Acquirer{Store: store, Source: src, Concurrency: concurrency, MaxDurationS: maxDurationS}
}

// GetChatData returns the dataset for videoID, from the store when present,
// otherwise via a coalesced live fetch. Returns ErrNotFound when the video
// does not exist upstream or exceeds the duration ceiling.
func (a *Acquirer) GetChatData(ctx context.Context, videoID int64) (*ChatData, error) {
	data, err := a.Store.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if data != nil {
		telemetry.DatasetCacheHits.Inc()
		return data, nil
	}

	key := strconv.FormatInt(videoID, 10)
	ch := a.flight.DoChan(key, func() (interface{}, error) {
		// Detach from the initiating request so one caller's cancellation
		// cannot fail the fetch for everyone coalesced onto it.
		return a.fetchAndStore(context.WithoutCancel(ctx), videoID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			telemetry.FetchesCoalesced.Inc()
		}
		return res.Val.(*ChatData), nil
	case <-ctx.Done():
		// The flight keeps running for other waiters; this caller gives up.
		return nil, ctx.Err()
	}
}

func (a *Acquirer) fetchAndStore(ctx context.Context, videoID int64) (*ChatData, error) {
	// A request that lost the flight race may land here after the winner
	// stored the dataset; re-check before going to the network.
	if data, err := a.Store.Get(ctx, videoID); err != nil {
		return nil, err
	} else if data != nil {
		return data, nil
	}

	logger := slog.Default().With(slog.String("component", "dataset_acquirer"), slog.Int64("video_id", videoID))

	duration, err := a.Source.VideoDuration(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if duration > a.MaxDurationS {
		logger.Info("video exceeds acquisition ceiling", slog.Int("duration_s", duration), slog.Int("ceiling_s", a.MaxDurationS))
		return nil, ErrNotFound
	}

	telemetry.ChatFetchesStarted.Inc()
	start := time.Now()
	records, err := a.fetchSlices(ctx, videoID, duration)
	if err != nil {
		telemetry.ChatFetchesFailed.Inc()
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	telemetry.ChatFetchesSucceeded.Inc()
	telemetry.ChatFetchDuration.Observe(time.Since(start).Seconds())
	logger.Info("chat fetch finished", slog.Int("records", len(records)), slog.Int("duration_s", duration))

	data := &ChatData{VideoID: videoID, Duration: duration, Records: records}
	if err := a.Store.Put(ctx, data); err != nil {
		return nil, fmt.Errorf("store dataset: %w", err)
	}
	return data, nil
}

// fetchSlices partitions [0, duration) into Concurrency slices and fetches them
// with a bounded worker pool. The first failing slice cancels the rest and the
// whole fetch fails; no partial result is returned.
func (a *Acquirer) fetchSlices(ctx context.Context, videoID int64, duration int) ([]Record, error) {
	workers := a.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	sliceLen := (duration + workers - 1) / workers

	results := make([][]Record, workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < workers; i++ {
		lo := i * sliceLen
		hi := lo + sliceLen
		if hi > duration {
			hi = duration
		}
		if lo >= hi {
			break
		}
		i, lo, hi := i, lo, hi
		g.Go(func() error {
			recs, err := a.Source.ChatWindow(gctx, videoID, lo, hi)
			if err != nil {
				return fmt.Errorf("slice [%d,%d): %w", lo, hi, err)
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]Record, 0)
	for _, recs := range results {
		merged = append(merged, recs...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Offset < merged[j].Offset })
	return merged, nil
}
