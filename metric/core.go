package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every bridge metric
const Namespace = "featurebridge"

// Metrics holds the process-wide collectors: lifecycle state and shutdown
// triggers from the coordinator, and per-component health from the heartbeat
type Metrics struct {
	LifecycleState       prometheus.Gauge
	ShutdownsTotal       *prometheus.CounterVec
	ShutdownStepFailures *prometheus.CounterVec
	HealthCheckStatus    *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all process metrics
func NewMetrics() *Metrics {
	return &Metrics{
		LifecycleState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "lifecycle",
				Name:      "state",
				Help:      "Process lifecycle state (0=running, 1=shutting_down, 2=stopped)",
			},
		),

		ShutdownsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "lifecycle",
				Name:      "shutdowns_total",
				Help:      "Shutdown triggers by reason, including ignored repeats",
			},
			[]string{"reason", "accepted"},
		),

		ShutdownStepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "lifecycle",
				Name:      "step_failures_total",
				Help:      "Teardown steps that returned an error or panicked",
			},
			[]string{"step"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Component health at the last heartbeat (0=not healthy, 1=healthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordLifecycleState updates the lifecycle state gauge
func (c *Metrics) RecordLifecycleState(state int) {
	c.LifecycleState.Set(float64(state))
}

// RecordShutdown counts a shutdown trigger
func (c *Metrics) RecordShutdown(reason string, accepted bool) {
	label := "false"
	if accepted {
		label = "true"
	}
	c.ShutdownsTotal.WithLabelValues(reason, label).Inc()
}

// RecordStepFailure counts a failed teardown step
func (c *Metrics) RecordStepFailure(step string) {
	c.ShutdownStepFailures.WithLabelValues(step).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}
