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
	PollsTotal        prometheus.Counter
	PollErrors        prometheus.Counter
	TrackChanges      prometheus.Counter
	StatusUpdates     prometheus.Counter
	StatusUpdateFails prometheus.Counter

	// Histograms (seconds)
	RequestDuration *prometheus.HistogramVec

	// Gauges
	WorkersGauge     prometheus.Gauge
	LinkedUsersGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "slackfm_lastfm_polls_total", Help: "Number of Last.fm now-playing polls"})
		PollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "slackfm_lastfm_poll_errors_total", Help: "Number of Last.fm polls that failed"})
		TrackChanges = promauto.NewCounter(prometheus.CounterOpts{Name: "slackfm_track_changes_total", Help: "Number of now-playing change events emitted"})
		StatusUpdates = promauto.NewCounter(prometheus.CounterOpts{Name: "slackfm_status_updates_total", Help: "Number of Slack status updates pushed"})
		StatusUpdateFails = promauto.NewCounter(prometheus.CounterOpts{Name: "slackfm_status_update_failures_total", Help: "Number of Slack status updates that failed"})
		RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "slackfm_http_request_duration_seconds", Help: "HTTP request duration seconds", Buckets: prometheus.DefBuckets}, []string{"path", "status"})
		WorkersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "slackfm_workers", Help: "Current number of running presence workers"})
		LinkedUsersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "slackfm_linked_users", Help: "Current number of linked-user records"})
	})
}

// IncPoll counts one poll attempt; failed marks it as errored.
func IncPoll(failed bool) {
	if PollsTotal != nil {
		PollsTotal.Inc()
	}
	if failed && PollErrors != nil {
		PollErrors.Inc()
	}
}

// IncTrackChange counts one emitted change event.
func IncTrackChange() {
	if TrackChanges != nil {
		TrackChanges.Inc()
	}
}

// IncStatusUpdate counts one presence push attempt.
func IncStatusUpdate(failed bool) {
	if failed {
		if StatusUpdateFails != nil {
			StatusUpdateFails.Inc()
		}
		return
	}
	if StatusUpdates != nil {
		StatusUpdates.Inc()
	}
}

// SetWorkers records the current live worker count.
func SetWorkers(n int) {
	if WorkersGauge != nil {
		WorkersGauge.Set(float64(n))
	}
}

// SetLinkedUsers records the current linked-user record count.
func SetLinkedUsers(n int) {
	if LinkedUsersGauge != nil {
		LinkedUsersGauge.Set(float64(n))
	}
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(path, status string, d time.Duration) {
	if RequestDuration != nil {
		RequestDuration.WithLabelValues(path, status).Observe(d.Seconds())
	}
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
