// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	HighlightQueries      prometheus.Counter
	HighlightQueryErrors  prometheus.Counter
	ChatFetchesStarted    prometheus.Counter
	ChatFetchesSucceeded  prometheus.Counter
	ChatFetchesFailed     prometheus.Counter
	FetchesCoalesced      prometheus.Counter
	DatasetCacheHits      prometheus.Counter
	VotesCast             *prometheus.CounterVec
	TokenVerifyFailures   prometheus.Counter

	// Histograms (seconds)
	ChatFetchDuration prometheus.Observer
	PredictDuration   prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		HighlightQueries = promauto.NewCounter(prometheus.CounterOpts{Name: "highlight_queries_total", Help: "Number of highlight range queries served"})
		HighlightQueryErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "highlight_query_errors_total", Help: "Number of highlight range queries that failed"})
		ChatFetchesStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_fetches_started_total", Help: "Number of live chat data fetches started"})
		ChatFetchesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_fetches_succeeded_total", Help: "Number of live chat data fetches succeeded"})
		ChatFetchesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_fetches_failed_total", Help: "Number of live chat data fetches failed"})
		FetchesCoalesced = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_fetches_coalesced_total", Help: "Number of callers that shared another request's in-flight fetch"})
		DatasetCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "dataset_cache_hits_total", Help: "Number of chat data requests served from the local store"})
		VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{Name: "highlight_votes_total", Help: "Number of vote operations by action"}, []string{"action"})
		TokenVerifyFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "range_token_verify_failures_total", Help: "Number of range token verifications that failed"})
		ChatFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_fetch_duration_seconds", Help: "Live chat fetch duration seconds", Buckets: prometheus.DefBuckets})
		PredictDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "highlight_predict_duration_seconds", Help: "Predictor invocation duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
