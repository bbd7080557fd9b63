package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/featurebridge/errors"
	"github.com/c360/featurebridge/metric"
)

// SessionCounter reports the number of live inbound sessions
type SessionCounter interface {
	Live() int
}

// Launcher runs fn on a new goroutine
type Launcher func(name string, fn func() error)

func goLauncher(_ string, fn func() error) {
	go func() { _ = fn() }()
}

type namedReporter struct {
	name     string
	reporter Reporter
}

type heartbeatMetrics struct {
	ticks    prometheus.Counter
	sessions prometheus.Gauge
	uptime   prometheus.Gauge
	core     *metric.Metrics
}

func newHeartbeatMetrics(registry *metric.MetricsRegistry) *heartbeatMetrics {
	if registry == nil {
		return nil
	}

	m := &heartbeatMetrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "heartbeat",
			Name:      "ticks_total",
			Help:      "Heartbeat reports emitted",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "sessions",
			Name:      "live",
			Help:      "Live inbound sessions at the last heartbeat",
		}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "heartbeat",
			Name:      "uptime_seconds",
			Help:      "Process uptime at the last heartbeat",
		}),
		core: registry.CoreMetrics(),
	}

	_ = registry.RegisterCounter("heartbeat", "ticks", m.ticks)
	_ = registry.RegisterGauge("heartbeat", "sessions", m.sessions)
	_ = registry.RegisterGauge("heartbeat", "uptime", m.uptime)

	return m
}

// Heartbeat periodically logs a liveness record with the live session count
// and refreshes component health in the Monitor. It is independent of frame
// traffic.
type Heartbeat struct {
	name      string
	interval  time.Duration
	sessions  SessionCounter
	monitor   *Monitor
	reporters []namedReporter
	logger    *slog.Logger
	metrics   *heartbeatMetrics
	started   time.Time
	launch    Launcher

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
	running atomic.Bool
	beats   atomic.Int64
}

// NewHeartbeat creates a heartbeat reporting under name. monitor, registry
// and logger may be nil.
func NewHeartbeat(
	name string,
	interval time.Duration,
	sessions SessionCounter,
	monitor *Monitor,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}

	return &Heartbeat{
		name:     name,
		interval: interval,
		sessions: sessions,
		monitor:  monitor,
		logger:   logger.With("component", "heartbeat"),
		metrics:  newHeartbeatMetrics(registry),
		started:  time.Now(),
		launch:   goLauncher,
	}
}

// SetLauncher replaces the launcher of the ticker goroutine, typically with
// lifecycle.Coordinator.Go so a panic during a beat becomes a fault
// shutdown. Must be called before Start.
func (h *Heartbeat) SetLauncher(l Launcher) {
	if l != nil {
		h.launch = l
	}
}

// AddReporter adds a component whose health is refreshed on every beat.
// Must be called before Start.
func (h *Heartbeat) AddReporter(name string, r Reporter) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.reporters = append(h.reporters, namedReporter{name: name, reporter: r})
}

// Start launches the ticker goroutine. The heartbeat stops when ctx is
// cancelled or Stop is called.
func (h *Heartbeat) Start(ctx context.Context) error {
	if h.interval <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("interval must be positive, got %s", h.interval),
			"Heartbeat", "Start", "validate interval")
	}
	if h.sessions == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Heartbeat", "Start", "session counter required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return errors.WrapTransient(errors.ErrShuttingDown, "Heartbeat", "Start", "check state")
	}
	if h.done != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Heartbeat", "Start", "check state")
	}

	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	h.running.Store(true)

	done := h.done
	h.launch(h.name, func() error {
		h.loop(ctx, done)
		return nil
	})

	h.logger.Debug("Heartbeat started", "interval", h.interval)
	return nil
}

func (h *Heartbeat) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer h.running.Store(false)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Beat()
		}
	}
}

// Beat emits one liveness record immediately. The ticker calls it on every
// interval; it is exported so startup and tests can force a report.
func (h *Heartbeat) Beat() {
	live := h.sessions.Live()
	uptime := time.Since(h.started)
	h.beats.Add(1)

	h.logger.Info("heartbeat",
		"sessions", live,
		"uptime", uptime.Round(time.Second).String())

	if h.metrics != nil {
		h.metrics.ticks.Inc()
		h.metrics.sessions.Set(float64(live))
		h.metrics.uptime.Set(uptime.Seconds())
	}

	if h.monitor == nil {
		return
	}

	if h.metrics != nil {
		h.metrics.core.RecordHealthStatus(h.name, true)
	}
	h.monitor.Update(h.name, NewHealthy(h.name, "alive").WithMetrics(&Metrics{
		Uptime:       uptime,
		Sessions:     live,
		LastActivity: time.Now(),
	}))

	h.mu.Lock()
	reporters := make([]namedReporter, len(h.reporters))
	copy(reporters, h.reporters)
	h.mu.Unlock()

	for _, nr := range reporters {
		status := nr.reporter.Health()
		h.monitor.Update(nr.name, status)
		if h.metrics != nil {
			h.metrics.core.RecordHealthStatus(nr.name, status.IsHealthy())
		}
	}
}

// Beats returns the number of liveness records emitted so far
func (h *Heartbeat) Beats() int64 {
	return h.beats.Load()
}

// Running reports whether the ticker goroutine is active
func (h *Heartbeat) Running() bool {
	return h.running.Load()
}

// Stop cancels the ticker and waits for its goroutine to exit. Safe to call
// more than once and before Start; a stopped heartbeat cannot be restarted.
func (h *Heartbeat) Stop() error {
	h.mu.Lock()
	h.stopped = true
	cancel, done := h.cancel, h.done
	h.cancel = nil
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done
	h.logger.Debug("Heartbeat stopped", "beats", h.beats.Load())
	return nil
}
