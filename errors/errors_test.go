package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorTransient},
		{"explicit transient", WrapTransient(ErrInvalidData, "osc", "Emit", "write"), ErrorTransient},
		{"explicit invalid", WrapInvalid(ErrNoConnection, "frame", "Decode", "parse"), ErrorInvalid},
		{"explicit fatal", WrapFatal(fmt.Errorf("bind"), "websocket", "Start", "listen"), ErrorFatal},
		{"wrapped classified", fmt.Errorf("start: %w", WrapFatal(ErrNoConnection, "osc", "Dial", "open")), ErrorFatal},
		{"invalid data", fmt.Errorf("decode: %w", ErrInvalidData), ErrorInvalid},
		{"parsing failed", ErrParsingFailed, ErrorInvalid},
		{"unknown kind", ErrUnknownFrameKind, ErrorInvalid},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"missing config", ErrMissingConfig, ErrorFatal},
		{"shutting down", ErrShuttingDown, ErrorTransient},
		{"deadline", context.DeadlineExceeded, ErrorTransient},
		{"cancelled", fmt.Errorf("read: %w", context.Canceled), ErrorTransient},
		{"refused", errors.New("write udp 127.0.0.1:9000: connection refused"), ErrorTransient},
		{"panic text", errors.New("worker: panic: nil map"), ErrorFatal},
		{"unknown", errors.New("something odd"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsFatal(nil))

	transient := WrapTransient(ErrNoConnection, "osc", "Emit", "check connection")
	assert.True(t, IsTransient(transient))
	assert.False(t, IsInvalid(transient))
	assert.False(t, IsFatal(transient))

	invalid := WrapInvalid(ErrInvalidData, "frame", "Decode", "parse")
	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsTransient(invalid))

	fatal := WrapFatal(ErrMissingConfig, "heartbeat", "Start", "check sessions")
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsTransient(fatal))
}

func TestWrap_Message(t *testing.T) {
	err := WrapTransient(ErrShuttingDown, "osc", "Emit", "check state")

	assert.EqualError(t, err, "osc.Emit: check state failed: shutting down")
	assert.True(t, Is(err, ErrShuttingDown))

	var ce *ClassifiedError
	require.True(t, As(err, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "osc", ce.Component)
	assert.Equal(t, "Emit", ce.Operation)
	assert.Equal(t, "check state", ce.Action)
	assert.Same(t, ErrShuttingDown, ce.Unwrap())
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, WrapTransient(nil, "osc", "Emit", "write"))
	assert.NoError(t, WrapInvalid(nil, "frame", "Decode", "parse"))
	assert.NoError(t, WrapFatal(nil, "websocket", "Start", "listen"))
}

func TestWrap_OuterClassWins(t *testing.T) {
	inner := WrapInvalid(ErrInvalidConfig, "config", "Validate", "check port")
	outer := WrapFatal(inner, "main", "loadConfig", "validate")

	assert.True(t, IsFatal(outer))
	assert.True(t, IsInvalid(inner))
	assert.True(t, Is(outer, ErrInvalidConfig))
}

func TestNew(t *testing.T) {
	a := New("boom")
	b := New("boom")
	assert.EqualError(t, a, "boom")
	assert.False(t, Is(a, b))
}
