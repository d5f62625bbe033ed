package posthoginit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "posthoginit").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for initialization duration.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the PostHogInit collectors. A nil *Metrics records nothing.
//
// Collected:
//   - posthoginit_scheduled_total{path}: mounts by scheduling path
//   - posthoginit_settled_total{outcome}: mounts by outcome
//   - posthoginit_initialize_duration_seconds: load-and-initialize time
type Metrics struct {
	scheduled *prometheus.CounterVec
	settled   *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMetrics creates and registers the collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{
		Namespace: "posthoginit",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)
	return &Metrics{
		scheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "scheduled_total",
			Help:        "Deferred PostHog initializations scheduled, by scheduling path",
			ConstLabels: cfg.ConstLabels,
		}, []string{"path"}),

		settled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "settled_total",
			Help:        "Deferred PostHog initializations settled, by outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"outcome"}),

		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "initialize_duration_seconds",
			Help:        "Time spent loading and running InitializePostHogConsent",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}),
	}
}

func (m *Metrics) observeScheduled(p Path) {
	if m == nil {
		return
	}
	m.scheduled.WithLabelValues(string(p)).Inc()
}

func (m *Metrics) observeSettled(o Outcome) {
	if m == nil {
		return
	}
	m.settled.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
