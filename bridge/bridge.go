// Package bridge connects decoded frames to the outbound adapter: every frame
// is mapped with the fixed schema and each resulting message is emitted
// individually, in schema order.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/featurebridge/errors"
	"github.com/c360/featurebridge/frame"
	"github.com/c360/featurebridge/mapping"
	"github.com/c360/featurebridge/message"
	"github.com/c360/featurebridge/metric"
)

// Emitter sends one addressed value. *osc.Client implements it.
type Emitter interface {
	Emit(address string, v message.Value) error
}

// Stats is a point-in-time snapshot of pipeline counters
type Stats struct {
	Frames    int64
	Emitted   int64
	Failed    int64
	Aborted   int64
	Discarded int64
}

type bridgeMetrics struct {
	frames     prometheus.Counter
	emitted    prometheus.Counter
	emitErrors *prometheus.CounterVec
	aborted    prometheus.Counter
	mapLatency prometheus.Histogram
}

func newMetrics(registry *metric.MetricsRegistry) *bridgeMetrics {
	if registry == nil {
		return nil
	}

	m := &bridgeMetrics{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "bridge",
			Name:      "frames_total",
			Help:      "Frames handed to the pipeline",
		}),
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "bridge",
			Name:      "messages_emitted_total",
			Help:      "Mapped messages accepted by the outbound adapter",
		}),
		emitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "bridge",
			Name:      "emit_errors_total",
			Help:      "Mapped messages the outbound adapter rejected, by error class",
		}, []string{"class"}),
		aborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "bridge",
			Name:      "frames_aborted_total",
			Help:      "Frames cut short because the outbound adapter is shutting down",
		}),
		mapLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "bridge",
			Name:      "frame_duration_seconds",
			Help:      "Time to map and emit one frame",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),
	}

	_ = registry.RegisterCounter("bridge", "frames", m.frames)
	_ = registry.RegisterCounter("bridge", "messages_emitted", m.emitted)
	_ = registry.RegisterCounterVec("bridge", "emit_errors", m.emitErrors)
	_ = registry.RegisterCounter("bridge", "frames_aborted", m.aborted)
	_ = registry.RegisterHistogram("bridge", "frame_duration", m.mapLatency)

	return m
}

// Bridge is the decode → map → emit pipeline. HandleFrame is safe for
// concurrent use by multiple sessions; each call runs synchronously so a
// session's frames are emitted in the order they arrive.
type Bridge struct {
	schema  *mapping.Schema
	out     Emitter
	logger  *slog.Logger
	metrics *bridgeMetrics
	buffers sync.Pool

	frames    atomic.Int64
	emitted   atomic.Int64
	failed    atomic.Int64
	aborted   atomic.Int64
	discarded atomic.Int64
}

// New creates a pipeline over the given schema (nil selects
// mapping.Features). registry and logger may be nil.
func New(out Emitter, schema *mapping.Schema, registry *metric.MetricsRegistry, logger *slog.Logger) *Bridge {
	if schema == nil {
		schema = mapping.Features
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		schema:  schema,
		out:     out,
		logger:  logger.With("component", "bridge"),
		metrics: newMetrics(registry),
	}
	b.buffers.New = func() any {
		buf := make([]message.Message, 0, schema.MaxOutputs())
		return &buf
	}
	return b
}

// HandleFrame maps f and emits every resulting message. Emission errors
// never escape: transient and invalid failures are counted and the frame
// continues, while a shutting-down adapter ends the frame early. A
// partially sent frame is a normal outcome.
func (b *Bridge) HandleFrame(ctx context.Context, sessionID string, f frame.Frame) {
	if ctx.Err() != nil {
		b.discarded.Add(1)
		return
	}

	start := time.Now()
	b.frames.Add(1)
	if b.metrics != nil {
		b.metrics.frames.Inc()
	}

	bufp := b.buffers.Get().(*[]message.Message)
	msgs := b.schema.MapInto((*bufp)[:0], f)
	defer func() {
		*bufp = msgs[:0]
		b.buffers.Put(bufp)
	}()

	for i, m := range msgs {
		err := b.out.Emit(m.Address, m.Value)
		if err == nil {
			b.emitted.Add(1)
			if b.metrics != nil {
				b.metrics.emitted.Inc()
			}
			continue
		}

		if errors.Is(err, errors.ErrShuttingDown) {
			b.aborted.Add(1)
			if b.metrics != nil {
				b.metrics.aborted.Inc()
			}
			b.logger.Debug("Frame cut short by shutdown",
				"session", sessionID, "sent", i, "total", len(msgs))
			return
		}

		b.failed.Add(1)
		if b.metrics != nil {
			b.metrics.emitErrors.WithLabelValues(errors.Classify(err).String()).Inc()
		}
		b.logger.Debug("Emit failed", "session", sessionID, "address", m.Address, "error", err)
	}

	if b.metrics != nil {
		b.metrics.mapLatency.Observe(time.Since(start).Seconds())
	}
}

// HandleRaw decodes a raw envelope and handles the resulting frame.
// The decode error is returned so callers can count it; nothing is emitted
// for a rejected payload.
func (b *Bridge) HandleRaw(ctx context.Context, sessionID string, raw []byte) error {
	f, err := frame.Decode(raw)
	if err != nil {
		return err
	}
	b.HandleFrame(ctx, sessionID, f)
	return nil
}

// Stats returns a snapshot of the pipeline counters
func (b *Bridge) Stats() Stats {
	return Stats{
		Frames:    b.frames.Load(),
		Emitted:   b.emitted.Load(),
		Failed:    b.failed.Load(),
		Aborted:   b.aborted.Load(),
		Discarded: b.discarded.Load(),
	}
}
