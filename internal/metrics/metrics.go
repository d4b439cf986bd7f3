package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docdesk"

// Metrics holds every collector the service exports. A nil *Metrics is
// valid and records nothing, so packages can take it as an optional
// dependency.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	lockAcquisitions *prometheus.CounterVec
	pageMutations    *prometheus.CounterVec
	duplicateFlags   *prometheus.CounterVec
	revisionEvents   *prometheus.CounterVec
	idempotentReplay *prometheus.CounterVec
	expiredLocks     prometheus.Counter
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		lockAcquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquisitions_total",
			Help:      "Lock acquire attempts by outcome",
		}, []string{"outcome"}),
		pageMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_mutations_total",
			Help:      "Structural page mutations by operation and outcome",
		}, []string{"op", "outcome"}),
		duplicateFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_status_changes_total",
			Help:      "Duplicate status transitions by target status",
		}, []string{"status"}),
		revisionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revision_events_total",
			Help:      "Revision lifecycle events",
		}, []string{"event"}),
		idempotentReplay: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotent_replays_total",
			Help:      "Responses served from the idempotency cache",
		}, []string{"endpoint"}),
		expiredLocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_locks_cleared_total",
			Help:      "Expired locks cleared by maintenance",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.lockAcquisitions,
		m.pageMutations,
		m.duplicateFlags,
		m.revisionEvents,
		m.idempotentReplay,
		m.expiredLocks,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) RecordLockAcquire(outcome string) {
	if m == nil {
		return
	}
	m.lockAcquisitions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPageMutation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.pageMutations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) RecordDuplicateStatus(status string) {
	if m == nil {
		return
	}
	m.duplicateFlags.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordRevisionEvent(event string) {
	if m == nil {
		return
	}
	m.revisionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordReplay(endpoint string) {
	if m == nil {
		return
	}
	m.idempotentReplay.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) RecordExpiredLocks(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredLocks.Add(float64(n))
}
