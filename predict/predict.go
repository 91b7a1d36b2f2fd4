// Package predict ships the bundled chat-rate predictor: it flags the windows
// of a video where chat activity peaks. It is one implementation of the
// highlight.Predictor contract and can be swapped out wholesale.
package predict

import (
	"context"
	"sort"

	"github.com/onnwee/highlight-tender/backend/dataset"
	"github.com/onnwee/highlight-tender/backend/highlight"
)

// defaultWindowS is the highlight window length in seconds.
const defaultWindowS = 50

// RateWindow scores fixed-length windows anchored at message offsets by the
// number of messages they contain, and returns the top non-overlapping windows.
type RateWindow struct {
	// WindowS is the candidate range length in seconds. Default 50.
	WindowS int
}

func (p *RateWindow) window() int {
	if p.WindowS > 0 {
		return p.WindowS
	}
	return defaultWindowS
}

// Predict returns up to limit non-overlapping candidate ranges ordered by
// descending probability. Probability is the fraction of all chat messages
// falling inside the window.
func (p *RateWindow) Predict(ctx context.Context, data *dataset.ChatData, limit int) ([]highlight.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || len(data.Records) == 0 {
		return nil, nil
	}

	w := p.window()
	offsets := make([]float64, len(data.Records))
	for i, r := range data.Records {
		offsets[i] = r.Offset
	}
	sort.Float64s(offsets)

	// One candidate window per distinct anchor second.
	type scored struct {
		start, count int
	}
	var windows []scored
	lastStart := -1
	for i := range offsets {
		start := int(offsets[i])
		if start == lastStart {
			continue
		}
		lastStart = start
		end := float64(start + w)
		count := 0
		for k := i; k < len(offsets) && offsets[k] < end; k++ {
			count++
		}
		windows = append(windows, scored{start: start, count: count})
	}

	sort.SliceStable(windows, func(a, b int) bool {
		if windows[a].count != windows[b].count {
			return windows[a].count > windows[b].count
		}
		return windows[a].start < windows[b].start
	})

	total := float64(len(offsets))
	var out []highlight.Candidate
	taken := make([][2]int, 0, limit)
	for _, win := range windows {
		if len(out) >= limit {
			break
		}
		end := win.start + w
		if end > data.Duration {
			end = data.Duration
		}
		if win.start >= end {
			continue
		}
		if overlapsAny(taken, win.start, end) {
			continue
		}
		taken = append(taken, [2]int{win.start, end})
		out = append(out, highlight.Candidate{
			Start:       win.start,
			End:         end,
			Probability: float64(win.count) / total,
		})
	}
	return out, nil
}

func overlapsAny(taken [][2]int, start, end int) bool {
	for _, t := range taken {
		if start < t[1] && end > t[0] {
			return true
		}
	}
	return false
}
