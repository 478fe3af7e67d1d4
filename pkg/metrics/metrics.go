// Package metrics provides Prometheus instrumentation for the tap.
// A tap run is a short-lived process with no scrape endpoint, so the
// collectors live in a private registry that is gathered and logged as
// a summary when the run ends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var registry = prometheus.NewRegistry()

var (
	// HTTPRequestDuration tracks the latency of Sailthru API calls
	HTTPRequestDuration = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tap_sailthru_http_request_duration_seconds",
			Help:    "Duration of Sailthru API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// RecordsEmitted counts records written per stream
	RecordsEmitted = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_sailthru_records_emitted_total",
			Help: "Records emitted per stream",
		},
		[]string{"stream"},
	)

	// RecordsFiltered counts records dropped before emission
	RecordsFiltered = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_sailthru_records_filtered_total",
			Help: "Records filtered before emission",
		},
		[]string{"stream", "reason"},
	)

	// JobPolls counts export job status checks by outcome
	JobPolls = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_sailthru_job_polls_total",
			Help: "Export job status polls by reported status",
		},
		[]string{"job", "status"},
	)

	// RetryAttempts counts retried API calls by error category
	RetryAttempts = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_sailthru_retry_attempts_total",
			Help: "Retried API calls by error category",
		},
		[]string{"reason"},
	)
)

// Timer measures the duration of one HTTP request
type Timer struct {
	endpoint string
	method   string
	start    time.Time
}

// NewHTTPTimer starts a timer for an API call
func NewHTTPTimer(endpoint, method string) *Timer {
	return &Timer{endpoint: endpoint, method: method, start: time.Now()}
}

// Stop records the observed duration with the response status
func (t *Timer) Stop(status string) {
	HTTPRequestDuration.WithLabelValues(t.endpoint, t.method, status).
		Observe(time.Since(t.start).Seconds())
}

// LogSummary gathers the registry and logs counter totals. Called once
// at the end of a run.
func LogSummary(log *zap.Logger) {
	families, err := registry.Gather()
	if err != nil {
		log.Warn("failed to gather metrics", zap.Error(err))
		return
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := make([]zap.Field, 0, len(m.GetLabel())+1)
			for _, lp := range m.GetLabel() {
				fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
			}
			switch {
			case m.GetCounter() != nil:
				fields = append(fields, zap.Float64("value", m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				fields = append(fields,
					zap.Uint64("count", m.GetHistogram().GetSampleCount()),
					zap.Float64("sum_seconds", m.GetHistogram().GetSampleSum()))
			default:
				continue
			}
			log.Info("metric "+mf.GetName(), fields...)
		}
	}
}
