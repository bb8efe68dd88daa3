// Package metrics exposes prometheus collectors for runs and steps.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "metronom"

// Metrics groups the collectors of one daemon. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	stepDuration *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
	wakeLateness prometheus.Histogram
	runsActive   prometheus.Gauge
	wakesPending prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of operation run phases.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"type"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Operations whose before, run or after phase failed.",
		}, []string{"type"}),
		wakeLateness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wake_lateness_seconds",
			Help:      "Delay between the scheduled and actual start of resumable steps.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Runs currently executing or waiting for their next step.",
		}),
		wakesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wake_requests_pending",
			Help:      "Wake requests waiting in the scheduler.",
		}),
	}
	m.registry.MustRegister(m.stepDuration, m.stepFailures, m.wakeLateness, m.runsActive, m.wakesPending)
	return m
}

// ObserveStep records one executed step of operation type typ.
func (m *Metrics) ObserveStep(typ string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(typ).Observe(d.Seconds())
	if failed {
		m.stepFailures.WithLabelValues(typ).Inc()
	}
}

// ObserveLateness records how late a resumable step started.
func (m *Metrics) ObserveLateness(ms float64) {
	if m == nil {
		return
	}
	if ms < 0 {
		ms = 0
	}
	m.wakeLateness.Observe(ms / 1000)
}

// RunStarted and RunEnded track the active run gauge.
func (m *Metrics) RunStarted() {
	if m != nil {
		m.runsActive.Inc()
	}
}

func (m *Metrics) RunEnded() {
	if m != nil {
		m.runsActive.Dec()
	}
}

// SetPendingWakes reports the scheduler heap size.
func (m *Metrics) SetPendingWakes(n int) {
	if m != nil {
		m.wakesPending.Set(float64(n))
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
