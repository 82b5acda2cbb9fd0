package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the portal.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	rateUpdates       *prometheus.CounterVec
	feedStatus        *prometheus.GaugeVec
	wizardTransitions *prometheus.CounterVec
	operationsCreated prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_external_errors_total",
				Help: "Total errors from the exchange backend.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		rateUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_rate_updates_total",
				Help: "Exchange-rate updates accepted, by source channel.",
			},
			[]string{"channel"},
		),
		feedStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "portal_rate_feed_status",
				Help: "Rate feed channel status (1 = current status).",
			},
			[]string{"status"},
		),
		wizardTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_wizard_transitions_total",
				Help: "Wizard state transitions, by target state.",
			},
			[]string{"to"},
		),
		operationsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_operations_created_total",
				Help: "Operations successfully created on the backend.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRateUpdate counts an accepted rate update from "push" or "poll".
func (m *Metrics) IncrRateUpdate(channel string) {
	m.rateUpdates.WithLabelValues(channel).Inc()
}

// SetFeedStatus marks the current feed status gauge. All other status
// labels are reset to zero so exactly one is high.
func (m *Metrics) SetFeedStatus(status string) {
	for _, s := range []string{"connecting", "connected", "disconnected", "failed"} {
		v := 0.0
		if s == status {
			v = 1.0
		}
		m.feedStatus.WithLabelValues(s).Set(v)
	}
}

// IncrWizardTransition counts a wizard transition into the given state.
func (m *Metrics) IncrWizardTransition(to string) {
	m.wizardTransitions.WithLabelValues(to).Inc()
}

// IncrOperationCreated counts a successful create-operation call.
func (m *Metrics) IncrOperationCreated() {
	m.operationsCreated.Inc()
}

// FeedSnapshot is a JSON-friendly view of the rate-feed counters,
// served by GET /v1/metrics/feed.
type FeedSnapshot struct {
	PushUpdates     int64   `json:"pushUpdates"`
	PollUpdates     int64   `json:"pollUpdates"`
	BackendErrors   float64 `json:"backendErrors"`
	CacheHitRate    float64 `json:"cacheHitRate"`
	OperationsTotal int64   `json:"operationsCreated"`
}

// GetFeedSnapshot reads current counter values back out of the
// registry for the JSON snapshot endpoint.
func (m *Metrics) GetFeedSnapshot() *FeedSnapshot {
	push := getCounterValue(m.rateUpdates, "push")
	poll := getCounterValue(m.rateUpdates, "poll")
	hits := getCounterValue(m.cacheHits, "accounts")
	misses := getCounterValue(m.cacheMisses, "accounts")

	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	var opsMetric dto.Metric
	ops := 0.0
	if err := m.operationsCreated.Write(&opsMetric); err == nil && opsMetric.Counter != nil {
		ops = opsMetric.Counter.GetValue()
	}

	return &FeedSnapshot{
		PushUpdates:     int64(push),
		PollUpdates:     int64(poll),
		BackendErrors:   getCounterValue(m.externalErrors, "backend"),
		CacheHitRate:    hitRate,
		OperationsTotal: int64(ops),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
