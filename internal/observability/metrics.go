// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Transport metrics
	HTTPRequests *prometheus.CounterVec
	HTTPRetries  *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Sync metrics
	TokensAdded   *prometheus.CounterVec
	ItemsSkipped  *prometheus.CounterVec
	ListsWritten  *prometheus.CounterVec
	WriteConflict prometheus.Counter

	// Featured metrics
	RanksAssigned *prometheus.CounterVec
	RanksRemoved  *prometheus.CounterVec
	FallbackSkips prometheus.Counter

	// Index metrics
	FilesHashed prometheus.Counter

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Server metrics
	ServedRequests *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses the default registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "tokendir"
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	f := promauto.With(registerer)

	return &Metrics{
		gatherer: gatherer,

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Outbound HTTP requests by host and status code",
		}, []string{"host", "status"}),
		HTTPRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "retries_total",
			Help:      "Outbound HTTP retries by host",
		}, []string{"host"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Outbound HTTP request latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"host"}),

		TokensAdded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "tokens_added_total",
			Help:      "Tokens appended to lists by chain and source",
		}, []string{"chain", "source"}),
		ItemsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "items_skipped_total",
			Help:      "Source items skipped for data-quality reasons",
		}, []string{"chain", "source"}),
		ListsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "lists_written_total",
			Help:      "List files persisted by chain",
		}, []string{"chain"}),
		WriteConflict: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "write_conflicts_total",
			Help:      "Saves refused because the file changed since it was read",
		}),

		RanksAssigned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "featured",
			Name:      "ranks_assigned_total",
			Help:      "Featured ranks assigned by chain",
		}, []string{"chain"}),
		RanksRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "featured",
			Name:      "ranks_removed_total",
			Help:      "Featured ranks removed by chain",
		}, []string{"chain"}),
		FallbackSkips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "featured",
			Name:      "fallback_skipped_total",
			Help:      "Chains where per-contract fallback was skipped over the ceiling",
		}),

		FilesHashed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "files_hashed_total",
			Help:      "List files hashed while building the index",
		}),

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Job runs by kind and status",
		}, []string{"kind", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Job run duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind"}),

		ServedRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Served HTTP requests by route and status code",
		}, []string{"route", "status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Push flushes every metric to a pushgateway under job.
// Short-lived commands call this once before exiting.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// Handler serves DefaultMetrics.
func Handler() http.Handler {
	return DefaultMetrics.Handler()
}

// RecordHTTPRequest records one outbound request.
func RecordHTTPRequest(host string, status int, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(host, strconv.Itoa(status)).Inc()
	DefaultMetrics.HTTPLatency.WithLabelValues(host).Observe(seconds)
}

// RecordHTTPRetry records one retried request.
func RecordHTTPRetry(host string) {
	DefaultMetrics.HTTPRetries.WithLabelValues(host).Inc()
}

// RecordSync records the outcome of one chain sync.
func RecordSync(chain, source string, added, skipped int, written bool) {
	DefaultMetrics.TokensAdded.WithLabelValues(chain, source).Add(float64(added))
	DefaultMetrics.ItemsSkipped.WithLabelValues(chain, source).Add(float64(skipped))
	if written {
		DefaultMetrics.ListsWritten.WithLabelValues(chain).Inc()
	}
}

// RecordWriteConflict records a refused save.
func RecordWriteConflict() {
	DefaultMetrics.WriteConflict.Inc()
}

// RecordFeatured records ranks assigned and removed for a chain.
func RecordFeatured(chain string, assigned, removed int, fallbackSkipped bool) {
	DefaultMetrics.RanksAssigned.WithLabelValues(chain).Add(float64(assigned))
	DefaultMetrics.RanksRemoved.WithLabelValues(chain).Add(float64(removed))
	if fallbackSkipped {
		DefaultMetrics.FallbackSkips.Inc()
	}
}

// RecordFilesHashed adds n hashed index files.
func RecordFilesHashed(n int) {
	DefaultMetrics.FilesHashed.Add(float64(n))
}

// RecordRun records a finished job run.
func RecordRun(kind, status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(kind, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordServed records one request handled by the registry server.
func RecordServed(route string, status int) {
	DefaultMetrics.ServedRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
