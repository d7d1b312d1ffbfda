package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch outcomes.
const (
	OutcomeSubmitted    = "submitted"
	OutcomeUnconfigured = "unconfigured"
	OutcomeSuppressed   = "suppressed"
	OutcomeError        = "error"
)

// Post outcomes.
const (
	PostSent    = "sent"
	PostFailed  = "failed"
	PostDropped = "dropped"
)

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	DispatchTotal *prometheus.CounterVec
	PostsTotal    *prometheus.CounterVec
	PostDuration  prometheus.Histogram
	QueueDepth    prometheus.Gauge

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zulipnotify_dispatch_total",
			Help: "Notification dispatch decisions by scope and outcome",
		}, []string{"scope", "outcome"}),
		PostsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zulipnotify_posts_total",
			Help: "Outbound webhook posts by outcome",
		}, []string{"outcome"}),
		PostDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zulipnotify_post_duration_seconds",
			Help:    "Duration of outbound webhook posts",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zulipnotify_queue_depth",
			Help: "Posts waiting in the transport queue",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.DispatchTotal,
		m.PostsTotal,
		m.PostDuration,
		m.QueueDepth,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordDispatch(scope, outcome string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(scope, outcome).Inc()
}

func (m *Metrics) RecordPost(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.PostsTotal.WithLabelValues(outcome).Inc()
	if took > 0 {
		m.PostDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
