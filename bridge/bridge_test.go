package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/featurebridge/errors"
	"github.com/c360/featurebridge/frame"
	"github.com/c360/featurebridge/mapping"
	"github.com/c360/featurebridge/message"
	"github.com/c360/featurebridge/metric"
)

// fakeEmitter records emissions and fails according to failOn
type fakeEmitter struct {
	mu     sync.Mutex
	sent   []message.Message
	calls  int
	failOn func(call int, address string) error
}

func (f *fakeEmitter) Emit(address string, v message.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failOn != nil {
		if err := f.failOn(f.calls, address); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, message.Message{Address: address, Value: v})
	return nil
}

func (f *fakeEmitter) messages() []message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]message.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func mustDecode(t *testing.T, raw string) frame.Frame {
	t.Helper()
	f, err := frame.Decode([]byte(raw))
	require.NoError(t, err)
	return f
}

const scenarioOne = `{"type":"features","payload":{"rms":0.5,"beat":true}}`

func TestBridge_EmitsMappedMessagesInOrder(t *testing.T) {
	out := &fakeEmitter{}
	b := New(out, nil, nil, nil)

	f := mustDecode(t, scenarioOne)
	b.HandleFrame(context.Background(), "s1", f)

	assert.Equal(t, mapping.Map(f), out.messages())
	assert.Equal(t, Stats{Frames: 1, Emitted: 15}, b.Stats())
}

func TestBridge_TransientErrorsDoNotStopFrame(t *testing.T) {
	out := &fakeEmitter{failOn: func(call int, _ string) error {
		if call%2 == 0 {
			return errors.WrapTransient(fmt.Errorf("connection refused"), "osc", "Emit", "write")
		}
		return nil
	}}
	b := New(out, nil, nil, nil)

	b.HandleFrame(context.Background(), "s1", mustDecode(t, scenarioOne))

	assert.Equal(t, 15, out.calls, "every message is attempted")
	stats := b.Stats()
	assert.Equal(t, int64(8), stats.Emitted)
	assert.Equal(t, int64(7), stats.Failed)
	assert.Equal(t, int64(0), stats.Aborted)
}

func TestBridge_InvalidEmitErrorContinues(t *testing.T) {
	out := &fakeEmitter{failOn: func(_ int, address string) error {
		if address == "/audio/rms" {
			return errors.WrapInvalid(errors.ErrInvalidData, "osc", "Encode", "encode")
		}
		return nil
	}}
	b := New(out, nil, nil, nil)

	b.HandleFrame(context.Background(), "s1", mustDecode(t, scenarioOne))

	assert.Equal(t, int64(14), b.Stats().Emitted)
	assert.Equal(t, int64(1), b.Stats().Failed)
}

func TestBridge_ShuttingDownAbortsFrame(t *testing.T) {
	out := &fakeEmitter{failOn: func(call int, _ string) error {
		if call >= 3 {
			return errors.WrapTransient(errors.ErrShuttingDown, "osc", "Emit", "check state")
		}
		return nil
	}}
	b := New(out, nil, nil, nil)

	b.HandleFrame(context.Background(), "s1", mustDecode(t, scenarioOne))

	assert.Equal(t, 3, out.calls, "no further emits after shutdown is observed")
	assert.Len(t, out.messages(), 2)
	assert.Equal(t, int64(1), b.Stats().Aborted)
}

func TestBridge_CancelledContextDiscards(t *testing.T) {
	out := &fakeEmitter{}
	b := New(out, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.HandleFrame(ctx, "s1", mustDecode(t, scenarioOne))

	assert.Zero(t, out.calls)
	assert.Equal(t, int64(1), b.Stats().Discarded)
	assert.Equal(t, int64(0), b.Stats().Frames)
}

func TestBridge_HandleRaw(t *testing.T) {
	out := &fakeEmitter{}
	b := New(out, nil, nil, nil)

	for _, bad := range []string{"not json", `42`, `{"type":"beats","payload":{}}`, `null`} {
		err := b.HandleRaw(context.Background(), "s1", []byte(bad))
		require.Error(t, err, bad)
		assert.True(t, errors.IsInvalid(err), bad)
	}
	assert.Zero(t, out.calls)

	require.NoError(t, b.HandleRaw(context.Background(), "s1", []byte(scenarioOne)))
	assert.Equal(t, 15, out.calls)
}

func TestBridge_CustomSchema(t *testing.T) {
	schema, err := mapping.NewSchema([]mapping.Rule{
		{Address: "/x", Path: []string{"x"}, Coercion: mapping.Number},
	})
	require.NoError(t, err)

	out := &fakeEmitter{}
	b := New(out, schema, nil, nil)
	b.HandleFrame(context.Background(), "s1", frame.New(map[string]any{"x": 2.0, "rms": 1.0}))

	require.Len(t, out.messages(), 1)
	assert.Equal(t, "/x", out.messages()[0].Address)
}

func TestBridge_ConcurrentSessions(t *testing.T) {
	out := &fakeEmitter{}
	b := New(out, nil, nil, nil)
	f := mustDecode(t, scenarioOne)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.HandleFrame(context.Background(), fmt.Sprintf("s%d", i), f)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(100), b.Stats().Frames)
	assert.Equal(t, int64(1500), b.Stats().Emitted)
}

func TestBridge_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	out := &fakeEmitter{failOn: func(call int, _ string) error {
		if call == 1 {
			return errors.WrapTransient(errors.ErrNoConnection, "osc", "Emit", "check connection")
		}
		return nil
	}}
	b := New(out, nil, registry, nil)

	b.HandleFrame(context.Background(), "s1", mustDecode(t, scenarioOne))

	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.frames))
	assert.Equal(t, 14.0, testutil.ToFloat64(b.metrics.emitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.emitErrors.WithLabelValues("transient")))
}
