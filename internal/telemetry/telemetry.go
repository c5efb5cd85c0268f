// Package telemetry holds the tracer and the prometheus collectors of the
// scheduler. Every method of Metrics is safe on a nil receiver, so a run
// without a metrics endpoint passes nil.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// Tracer is the tracer used for tick and batch spans.
var Tracer = otel.Tracer("agentgrid.scheduler")

// Meter is the meter used for batch instruments.
var Meter = otel.Meter("agentgrid.experiment")

// Metrics groups the scheduler collectors.
type Metrics struct {
	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	units        prometheus.Gauge
	steps        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "agentgrid_ticks_total",
			Help: "Scheduler ticks completed.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentgrid_tick_duration_seconds",
			Help:    "Wall time of one scheduler tick, barrier included.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		units: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentgrid_units_scheduled",
			Help: "Simulation units currently scheduled.",
		}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentgrid_unit_steps_total",
			Help: "Unit steps by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveTick records a completed tick.
func (m *Metrics) ObserveTick(d time.Duration, scheduled int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.units.Set(float64(scheduled))
}

// ObserveStep records the outcome of one unit step: "ok", "failed" or
// "panicked".
func (m *Metrics) ObserveStep(outcome string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(outcome).Inc()
}
