// Package metrics holds the prometheus collectors of the gamification pipeline.
// Every method is safe on a nil *Metrics so components can run without metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "gamification"

type Metrics struct {
	Registry *prometheus.Registry

	eventsPublished *prometheus.CounterVec
	listenerErrors  *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	batchDuration   prometheus.Histogram
	badgesAwarded   *prometheus.CounterVec
	xpAwarded       prometheus.Counter
	notifications   *prometheus.CounterVec
	connections     prometheus.Gauge
	failures        *prometheus.CounterVec
	exported        *prometheus.CounterVec
}

// New builds collectors on a fresh registry including Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the pipeline collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Registry: reg,
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published on the bus by name and whether any listener existed.",
		}, []string{"event", "delivered"}),
		listenerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_errors_total",
			Help:      "Listener invocations that returned an error or panicked.",
		}, []string{"event"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_jobs_total",
			Help:      "Worker job outcomes.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_depth",
			Help:      "Jobs waiting in the worker queue.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_batch_duration_seconds",
			Help:      "Wall time of one drained batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		badgesAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_awarded_total",
			Help:      "Badges awarded by badge id.",
		}, []string{"badge"}),
		xpAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_awarded_total",
			Help:      "Cumulative XP granted across users.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications created by type and live delivery outcome.",
		}, []string{"type", "delivery"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Users with a live delivery channel.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Swallowed failures by component.",
		}, []string{"component"}),
		exported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_exported_total",
			Help:      "Events exported to the broker by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.eventsPublished,
		m.listenerErrors,
		m.jobs,
		m.queueDepth,
		m.batchDuration,
		m.badgesAwarded,
		m.xpAwarded,
		m.notifications,
		m.connections,
		m.failures,
		m.exported,
	)
	return m
}

func (m *Metrics) EventPublished(name string, delivered bool) {
	if m == nil {
		return
	}
	label := "false"
	if delivered {
		label = "true"
	}
	m.eventsPublished.WithLabelValues(name, label).Inc()
}

func (m *Metrics) ListenerError(name string) {
	if m == nil {
		return
	}
	m.listenerErrors.WithLabelValues(name).Inc()
}

// Job outcomes: succeeded, retried, dropped.
func (m *Metrics) Job(outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) BatchDuration(seconds float64) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(seconds)
}

func (m *Metrics) BadgeAwarded(badgeID string) {
	if m == nil {
		return
	}
	m.badgesAwarded.WithLabelValues(badgeID).Inc()
}

func (m *Metrics) XPAwarded(points int) {
	if m == nil {
		return
	}
	m.xpAwarded.Add(float64(points))
}

func (m *Metrics) Notification(kind string, delivered bool) {
	if m == nil {
		return
	}
	label := "stored"
	if delivered {
		label = "pushed"
	}
	m.notifications.WithLabelValues(kind, label).Inc()
}

func (m *Metrics) Connections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) Failure(component string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(component).Inc()
}

func (m *Metrics) Exported(outcome string) {
	if m == nil {
		return
	}
	m.exported.WithLabelValues(outcome).Inc()
}
