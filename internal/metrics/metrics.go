// Package metrics exposes brewmap Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "brewmap"

// Metrics holds the HTTP and domain collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	upstreamErrors      *prometheus.CounterVec
	follows             *prometheus.CounterVec
	votes               *prometheus.CounterVec
	reviews             *prometheus.CounterVec
	submissionDecisions *prometheus.CounterVec
	feedDegraded        *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
	reconciledCafes     prometheus.Counter
	reconcileRuns       *prometheus.CounterVec
}

// New builds and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"service", "method", "path"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "errors_total",
			Help:      "Failed calls to the hosted platform by error code.",
		}, []string{"code"}),
		follows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "social",
			Name:      "follow_changes_total",
			Help:      "Follow and unfollow operations.",
		}, []string{"action"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cafes",
			Name:      "votes_total",
			Help:      "Vote changes by kind and resulting state.",
		}, []string{"kind", "result"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reviews",
			Name:      "writes_total",
			Help:      "Review writes by action.",
		}, []string{"action"}),
		submissionDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submissions",
			Name:      "events_total",
			Help:      "Submission lifecycle events.",
		}, []string{"event"}),
		feedDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "degraded_sources_total",
			Help:      "Feed pages served without one of their sources.",
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		reconciledCafes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "reconciled_cafes_total",
			Help:      "Cafes whose vote counters were corrected.",
		}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "tally_runs_total",
			Help:      "Tally reconciliation runs by outcome.",
		}, []string{"success"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.upstreamErrors,
		m.follows,
		m.votes,
		m.reviews,
		m.submissionDecisions,
		m.feedDegraded,
		m.cacheLookups,
		m.reconciledCafes,
		m.reconcileRuns,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight increments the in-flight request gauge.
func (m *Metrics) IncrementInFlight() {
	if m == nil {
		return
	}
	m.httpInFlight.Inc()
}

// DecrementInFlight decrements the in-flight request gauge.
func (m *Metrics) DecrementInFlight() {
	if m == nil {
		return
	}
	m.httpInFlight.Dec()
}

// RecordHTTPRequest records one handled request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordUpstreamError counts a failed platform call by error code.
func (m *Metrics) RecordUpstreamError(code string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(code).Inc()
}

// RecordFollow counts a follow ("follow") or unfollow ("unfollow").
func (m *Metrics) RecordFollow(action string) {
	if m == nil {
		return
	}
	m.follows.WithLabelValues(action).Inc()
}

// RecordVote counts a vote change. result is "cast", "removed" or "switched".
func (m *Metrics) RecordVote(kind, result string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(kind, result).Inc()
}

// RecordReview counts a review write ("created", "updated", "deleted").
func (m *Metrics) RecordReview(action string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(action).Inc()
}

// RecordSubmission counts a submission event ("submitted", "approved",
// "rejected", "withdrawn", "approve_conflict", "compensated").
func (m *Metrics) RecordSubmission(event string) {
	if m == nil {
		return
	}
	m.submissionDecisions.WithLabelValues(event).Inc()
}

// RecordFeedDegraded counts a feed page missing source.
func (m *Metrics) RecordFeedDegraded(source string) {
	if m == nil {
		return
	}
	m.feedDegraded.WithLabelValues(source).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordReconcile records a tally reconciliation run.
func (m *Metrics) RecordReconcile(corrected int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reconcileRuns.WithLabelValues("false").Inc()
		return
	}
	m.reconcileRuns.WithLabelValues("true").Inc()
	m.reconciledCafes.Add(float64(corrected))
}
