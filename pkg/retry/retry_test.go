package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/featurebridge/errors"
)

func fast(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func transient() error {
	return errors.WrapTransient(fmt.Errorf("lookup failed"), "test", "op", "resolve")
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), func() error {
		calls++
		if calls < 3 {
			return transient()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(4), func() error {
		calls++
		return transient()
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.True(t, errors.IsTransient(err))
	assert.Contains(t, err.Error(), "gave up after 4 attempts")
}

func TestDo_StopsOnNonTransient(t *testing.T) {
	for name, failure := range map[string]error{
		"invalid": errors.WrapInvalid(errors.ErrInvalidConfig, "test", "op", "validate"),
		"fatal":   errors.WrapFatal(fmt.Errorf("bind"), "test", "op", "listen"),
	} {
		t.Run(name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fast(5), func() error {
				calls++
				return failure
			})
			assert.Same(t, failure, err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, Config{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		calls++
		cancel()
		return transient()
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "cancelled after attempt 1")
}

func TestDo_SingleAttemptByDefault(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{}, func() error {
		calls++
		return transient()
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_BackoffIsBounded(t *testing.T) {
	start := time.Now()
	_ = Do(context.Background(), Config{
		MaxAttempts:  4,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   10,
	}, transient)

	// 10ms + 20ms + 20ms
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Startup().Validate())

	for _, cfg := range []Config{
		{InitialDelay: -1},
		{MaxDelay: -1},
		{Multiplier: -1},
		{InitialDelay: time.Second, MaxDelay: time.Millisecond},
	} {
		err := Do(context.Background(), cfg, func() error { return nil })
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	}
}
