// Package metric provides the Prometheus registry shared by bridge components
// and the HTTP server that exposes it.
//
// Components receive a *MetricsRegistry (or nil) and build their own
// collectors in a newMetrics helper. A nil registry means metrics are disabled;
// the helper returns nil and every record call becomes a no-op:
//
//	func newEmitterMetrics(registry *metric.MetricsRegistry) *emitterMetrics {
//		if registry == nil {
//			return nil
//		}
//		m := &emitterMetrics{sent: prometheus.NewCounter(...)}
//		_ = registry.RegisterCounter("osc", "messages_sent", m.sent)
//		return m
//	}
//
// Registration keys are "<component>.<metric>". Registering the same key twice
// returns an invalid-class error rather than panicking, so components can be
// constructed repeatedly in tests against a single registry.
//
// Process-wide metrics (lifecycle state, shutdown triggers, step failures,
// classified errors, health) live in Metrics and are registered by
// NewMetricsRegistry together with the Go and process collectors.
//
// Server serves the registry on /metrics and accepts additional handlers via
// Handle, which is how the health endpoint is mounted next to it.
package metric
