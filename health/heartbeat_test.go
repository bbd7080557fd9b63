package health

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/featurebridge/errors"
	"github.com/c360/featurebridge/lifecycle"
	"github.com/c360/featurebridge/metric"
)

type fixedSessions struct{ n atomic.Int64 }

func (f *fixedSessions) Live() int { return int(f.n.Load()) }

type staticReporter struct{ status Status }

func (s staticReporter) Health() Status { return s.status }

type panickingReporter struct{}

func (panickingReporter) Health() Status { panic("reporter exploded") }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHeartbeat_Beat(t *testing.T) {
	sessions := &fixedSessions{}
	sessions.n.Store(2)
	monitor := NewMonitor()
	registry := metric.NewMetricsRegistry()
	var logs syncBuffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	hb := NewHeartbeat("heartbeat", time.Hour, sessions, monitor, registry, logger)
	hb.AddReporter("osc", staticReporter{status: NewDegraded("osc", "send failed")})

	hb.Beat()

	assert.Equal(t, int64(1), hb.Beats())
	assert.Contains(t, logs.String(), `"msg":"heartbeat"`)
	assert.Contains(t, logs.String(), `"sessions":2`)

	status, ok := monitor.Get("heartbeat")
	require.True(t, ok)
	require.NotNil(t, status.Metrics)
	assert.Equal(t, 2, status.Metrics.Sessions)

	osc, ok := monitor.Get("osc")
	require.True(t, ok)
	assert.True(t, osc.IsDegraded())

	assert.Equal(t, 1.0, testutil.ToFloat64(hb.metrics.ticks))
	assert.Equal(t, 2.0, testutil.ToFloat64(hb.metrics.sessions))

	gauge := registry.CoreMetrics().HealthCheckStatus
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge.WithLabelValues("heartbeat")))
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge.WithLabelValues("osc")))
}

func TestHeartbeat_TicksAndStops(t *testing.T) {
	sessions := &fixedSessions{}
	hb := NewHeartbeat("heartbeat", 10*time.Millisecond, sessions, nil, nil, nil)

	require.NoError(t, hb.Start(context.Background()))
	assert.True(t, hb.Running())

	require.Eventually(t, func() bool { return hb.Beats() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, hb.Stop())
	assert.False(t, hb.Running())

	after := hb.Beats()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, hb.Beats(), "no beats after Stop")

	// Idempotent
	require.NoError(t, hb.Stop())

	err := hb.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrShuttingDown))
}

func TestHeartbeat_ContextCancel(t *testing.T) {
	hb := NewHeartbeat("heartbeat", 10*time.Millisecond, &fixedSessions{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, hb.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !hb.Running() }, time.Second, 5*time.Millisecond)
	require.NoError(t, hb.Stop())
}

func TestHeartbeat_StartValidation(t *testing.T) {
	hb := NewHeartbeat("heartbeat", 0, &fixedSessions{}, nil, nil, nil)
	err := hb.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	hb = NewHeartbeat("heartbeat", time.Second, nil, nil, nil, nil)
	err = hb.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	hb = NewHeartbeat("heartbeat", time.Hour, &fixedSessions{}, nil, nil, nil)
	require.NoError(t, hb.Start(context.Background()))
	t.Cleanup(func() { _ = hb.Stop() })
	err = hb.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyStarted))
}

func TestHeartbeat_StopBeforeStart(t *testing.T) {
	hb := NewHeartbeat("heartbeat", time.Second, &fixedSessions{}, nil, nil, nil)
	assert.NoError(t, hb.Stop())

	// Stopped before ever starting still counts as stopped
	err := hb.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrShuttingDown))
}

func TestHeartbeat_PanicShutsDownThroughCoordinator(t *testing.T) {
	hb := NewHeartbeat("heartbeat", 5*time.Millisecond, &fixedSessions{}, NewMonitor(), nil, nil)
	hb.AddReporter("osc", panickingReporter{})

	coord := lifecycle.New(lifecycle.Config{StepTimeout: time.Second}, nil, nil)
	var stopped atomic.Bool
	require.NoError(t, coord.AddStep("heartbeat", func() error {
		stopped.Store(true)
		return hb.Stop()
	}))

	hb.SetLauncher(coord.Go)
	require.NoError(t, hb.Start(context.Background()))

	select {
	case <-coord.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not shut down after the beat panicked")
	}

	assert.True(t, stopped.Load())
	assert.False(t, hb.Running())
	assert.Equal(t, lifecycle.ReasonFault, coord.Reason())
	assert.Contains(t, coord.Cause().Error(), "reporter exploded")
}
