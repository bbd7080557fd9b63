package metric

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/featurebridge/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry)
	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())

	registry.CoreMetrics().RecordLifecycleState(0)
	names := gatheredNames(t, registry)
	assert.True(t, names["featurebridge_lifecycle_state"])
	assert.True(t, names["go_goroutines"])
}

func TestMetricsRegistry_RegisterKinds(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "c"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "g"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_histogram", Help: "h"})
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_counter_vec", Help: "cv"}, []string{"kind"})
	gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_gauge_vec", Help: "gv"}, []string{"kind"})

	require.NoError(t, registry.RegisterCounter("svc", "counter", counter))
	require.NoError(t, registry.RegisterGauge("svc", "gauge", gauge))
	require.NoError(t, registry.RegisterHistogram("svc", "histogram", histogram))
	require.NoError(t, registry.RegisterCounterVec("svc", "counter_vec", counterVec))
	require.NoError(t, registry.RegisterGaugeVec("svc", "gauge_vec", gaugeVec))

	counter.Inc()
	gauge.Set(3)
	histogram.Observe(0.5)
	counterVec.WithLabelValues("a").Inc()
	gaugeVec.WithLabelValues("a").Set(1)

	names := gatheredNames(t, registry)
	for _, name := range []string{"test_counter", "test_gauge", "test_histogram", "test_counter_vec", "test_gauge_vec"} {
		assert.True(t, names[name], name)
	}
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "d"})
	require.NoError(t, registry.RegisterCounter("svc", "dup", first))

	// Same key
	err := registry.RegisterCounter("svc", "dup", first)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Different key, same prometheus name
	second := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "d"})
	err = registry.RegisterCounter("other", "dup", second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", i),
				Help: "c",
			})
			assert.NoError(t, registry.RegisterCounter("svc", fmt.Sprintf("c%d", i), c))
		}(i)
	}
	wg.Wait()

	names := gatheredNames(t, registry)
	for i := 0; i < 20; i++ {
		assert.True(t, names[fmt.Sprintf("concurrent_counter_%d", i)])
	}
}

func TestMetrics_Record(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	m.RecordLifecycleState(1)
	m.RecordShutdown("signal", true)
	m.RecordShutdown("fault", false)
	m.RecordShutdown("fault", false)
	m.RecordStepFailure("sessions")
	m.RecordHealthStatus("bridge", true)
	m.RecordHealthStatus("osc", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LifecycleState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ShutdownsTotal.WithLabelValues("signal", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ShutdownsTotal.WithLabelValues("fault", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ShutdownStepFailures.WithLabelValues("sessions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("bridge")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("osc")))
}

func TestServer_ServesMetricsAndExtraHandlers(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordLifecycleState(0)

	server := NewServer("127.0.0.1:0", "", registry)
	server.Handle("/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop(time.Second) })

	done := make(chan error, 1)
	go func() { done <- server.Serve() }()

	base := "http://" + server.Address()

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "featurebridge_lifecycle_state"))

	resp, err = http.Get(base + "/health")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, server.Stop(time.Second))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestServer_StartTwice(t *testing.T) {
	server := NewServer("127.0.0.1:0", "/metrics", NewMetricsRegistry())
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop(time.Second) })

	err := server.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyStarted))
}

func TestServer_NilRegistry(t *testing.T) {
	server := NewServer("127.0.0.1:0", "/metrics", nil)
	err := server.Start()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestServer_StopBeforeStart(t *testing.T) {
	server := NewServer("127.0.0.1:0", "/metrics", NewMetricsRegistry())
	assert.NoError(t, server.Stop(time.Second))
}
