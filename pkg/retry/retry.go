package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/c360/featurebridge/errors"
)

// Config controls the backoff schedule
type Config struct {
	MaxAttempts  int           // total attempts; values below 1 mean a single attempt
	InitialDelay time.Duration // pause before the second attempt
	MaxDelay     time.Duration // ceiling for the pause
	Multiplier   float64       // growth per attempt
	Jitter       bool          // add up to 25% random delay
}

// Startup suits resources that may not be reachable the moment the
// process starts, such as an OSC host whose name is not yet in DNS.
func Startup() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		Jitter:       true,
	}
}

// Validate rejects schedules that cannot make progress
func (c Config) Validate() error {
	switch {
	case c.InitialDelay < 0, c.MaxDelay < 0:
		return errors.WrapInvalid(
			fmt.Errorf("%w: negative delay", errors.ErrInvalidConfig), "retry", "Validate", "check delays")
	case c.Multiplier < 0:
		return errors.WrapInvalid(
			fmt.Errorf("%w: negative multiplier", errors.ErrInvalidConfig), "retry", "Validate", "check multiplier")
	case c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay:
		return errors.WrapInvalid(
			fmt.Errorf("%w: max delay below initial delay", errors.ErrInvalidConfig), "retry", "Validate", "check delays")
	}
	return nil
}

// Do calls fn until it succeeds, returns an error that is not transient,
// runs out of attempts or ctx is cancelled. The last error from fn is
// wrapped in the returned error.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		pause := delay
		if cfg.Jitter && delay >= 4 {
			pause += rand.N(delay / 4)
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, lastErr)
		case <-timer.C:
		}

		next := time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && (next > cfg.MaxDelay || next < delay) {
			next = cfg.MaxDelay
		}
		delay = next
	}

	return fmt.Errorf("gave up after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
