// Package lifecycle owns process-wide shutdown. Every trigger (termination
// signal, panic, failed background task) goes through Coordinator.Shutdown,
// which runs the registered teardown steps exactly once, in order.
package lifecycle

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/c360/featurebridge/errors"
	"github.com/c360/featurebridge/metric"
)

// State is the process lifecycle state. It only moves forward.
type State int32

const (
	// StateRunning is the initial state
	StateRunning State = iota
	// StateShuttingDown is entered on the first shutdown trigger
	StateShuttingDown
	// StateStopped is entered after every step ran and the grace period passed
	StateStopped
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Reason tags what triggered a shutdown
type Reason string

const (
	// ReasonSignal is an external termination signal
	ReasonSignal Reason = "signal"
	// ReasonFault is a panic anywhere in the process
	ReasonFault Reason = "fault"
	// ReasonAsyncError is an error returned by a background task with no
	// other handler
	ReasonAsyncError Reason = "async_error"
)

// ExitCode maps a reason to the process exit status: signals exit cleanly,
// faults and async errors exit with 1.
func (r Reason) ExitCode() int {
	if r == ReasonSignal {
		return 0
	}
	return 1
}

// Config holds coordinator settings
type Config struct {
	// Grace is the pause after the last step so close frames can flush
	Grace time.Duration
	// StepTimeout bounds each step; a step that overruns is abandoned and
	// the next one runs. Zero waits indefinitely.
	StepTimeout time.Duration
	// Exit terminates the process. Nil leaves the process running; callers
	// then wait on Done.
	Exit func(code int)
}

// DefaultConfig returns the default settings with os.Exit as the exit func
func DefaultConfig() Config {
	return Config{
		Grace:       250 * time.Millisecond,
		StepTimeout: 5 * time.Second,
		Exit:        os.Exit,
	}
}

type step struct {
	name string
	fn   func() error
}

// Coordinator runs the teardown sequence exactly once no matter how many
// triggers fire, or from which goroutines.
type Coordinator struct {
	config  Config
	logger  *slog.Logger
	metrics *metric.Metrics

	state atomic.Int32

	mu    sync.Mutex
	steps []step

	// reason, cause and exitCode are written once before done is closed
	reason   Reason
	cause    error
	exitCode int
	done     chan struct{}
}

// New creates a coordinator in the running state. registry and logger may be
// nil.
func New(config Config, registry *metric.MetricsRegistry, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		config: config,
		logger: logger.With("component", "lifecycle"),
		done:   make(chan struct{}),
	}
	if registry != nil {
		c.metrics = registry.CoreMetrics()
		c.metrics.RecordLifecycleState(int(StateRunning))
	}
	return c
}

// AddStep appends a teardown step. Steps run in the order they were added.
// Adding a step after shutdown has begun fails.
func (c *Coordinator) AddStep(name string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateRunning {
		return errors.WrapTransient(errors.ErrShuttingDown, "lifecycle", "AddStep", fmt.Sprintf("add step %s", name))
	}
	c.steps = append(c.steps, step{name: name, fn: fn})
	return nil
}

// State returns the current lifecycle state
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Done is closed once shutdown has finished
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Reason returns the reason of the accepted trigger. Valid after Done.
func (c *Coordinator) Reason() Reason {
	<-c.done
	return c.reason
}

// Cause returns the error attached to the accepted trigger. Valid after Done.
func (c *Coordinator) Cause() error {
	<-c.done
	return c.cause
}

// ExitCode returns the exit status chosen for the accepted trigger. Valid
// after Done.
func (c *Coordinator) ExitCode() int {
	<-c.done
	return c.exitCode
}

// Shutdown is the single entry point for every trigger. The first call
// moves the state to shutting-down, runs every step, waits the grace period,
// moves to stopped and calls the exit func. It returns true for that call;
// every later or concurrent call is a no-op that returns false.
func (c *Coordinator) Shutdown(reason Reason, cause error) bool {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown)) {
		c.logger.Debug("Shutdown already in progress", "reason", string(reason), "error", cause)
		if c.metrics != nil {
			c.metrics.RecordShutdown(string(reason), false)
		}
		return false
	}

	if c.metrics != nil {
		c.metrics.RecordShutdown(string(reason), true)
		c.metrics.RecordLifecycleState(int(StateShuttingDown))
	}

	if reason == ReasonSignal {
		c.logger.Info("Shutting down", "reason", string(reason), "trigger", cause)
	} else {
		c.logger.Error("Shutting down after fatal error", "reason", string(reason), "error", cause)
	}

	c.mu.Lock()
	steps := make([]step, len(c.steps))
	copy(steps, c.steps)
	c.mu.Unlock()

	failed := 0
	for _, s := range steps {
		if err := c.runStep(s); err != nil {
			failed++
			c.logger.Error("Shutdown step failed", "step", s.name, "error", err)
			if c.metrics != nil {
				c.metrics.RecordStepFailure(s.name)
			}
			continue
		}
		c.logger.Debug("Shutdown step complete", "step", s.name)
	}

	if c.config.Grace > 0 {
		time.Sleep(c.config.Grace)
	}

	c.reason = reason
	c.cause = cause
	c.exitCode = reason.ExitCode()
	c.state.Store(int32(StateStopped))
	if c.metrics != nil {
		c.metrics.RecordLifecycleState(int(StateStopped))
	}

	c.logger.Info("Shutdown complete",
		"reason", string(reason),
		"steps", len(steps),
		"failed_steps", failed,
		"exit_code", c.exitCode)

	close(c.done)
	if c.config.Exit != nil {
		c.config.Exit(c.exitCode)
	}
	return true
}

// runStep isolates one step: errors, panics and timeouts are reported and
// never stop the sequence.
func (c *Coordinator) runStep(s step) error {
	result := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- errors.WrapFatal(fmt.Errorf("panic: %v", r), "lifecycle", "runStep", s.name)
			}
		}()
		result <- s.fn()
	}()

	if c.config.StepTimeout <= 0 {
		return <-result
	}

	timer := time.NewTimer(c.config.StepTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		return errors.WrapTransient(
			fmt.Errorf("%w: step did not finish within %s", errors.ErrConnectionTimeout, c.config.StepTimeout),
			"lifecycle", "runStep", s.name)
	}
}

// WatchSignals routes SIGINT and SIGTERM to Shutdown. Repeated signals are
// absorbed so they cannot interrupt the teardown. The returned func stops
// watching.
func (c *Coordinator) WatchSignals() (stop func()) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	quit := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case sig := <-sigs:
				go c.Shutdown(ReasonSignal, fmt.Errorf("received %s", sig))
			case <-quit:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(quit)
		})
	}
}

// Go runs fn in a goroutine. A panic shuts the process down with
// ReasonFault; a returned error shuts it down with ReasonAsyncError.
// fn should return nil when it stops because shutdown is already underway.
func (c *Coordinator) Go(name string, fn func() error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.fault(name, r)
			}
		}()

		if err := fn(); err != nil {
			c.Shutdown(ReasonAsyncError, fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// Recover turns a panic in the calling goroutine into a fault shutdown.
// Use it directly with defer:
//
//	defer coordinator.Recover()
func (c *Coordinator) Recover() {
	if r := recover(); r != nil {
		c.fault("main", r)
	}
}

func (c *Coordinator) fault(where string, r any) {
	c.logger.Error("Recovered panic", "where", where, "panic", r, "stack", string(debug.Stack()))
	c.Shutdown(ReasonFault, fmt.Errorf("%s: panic: %v", where, r))
}
