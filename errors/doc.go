// Package errors classifies every failure the bridge can observe.
//
// Errors carry one of three classes, matching how the bridge recovers:
//
//   - Invalid: malformed inbound payloads and bad configuration values. The
//     frame is dropped silently and never reaches the mapper.
//   - Transient: send failures, socket read errors, a closed or not yet
//     dialled transport. Counted, logged at debug level, processing
//     continues.
//   - Fatal: startup failures such as a port that cannot be bound. The
//     process stops.
//
// Panics and errors escaping supervised goroutines are routed to the
// lifecycle coordinator rather than classified here.
//
// Wrapped errors read "component.operation: action failed: cause" and keep
// the cause in the chain:
//
//	err := errors.WrapTransient(errors.ErrShuttingDown, "osc", "Emit", "check state")
//	errors.Is(err, errors.ErrShuttingDown) // true
//	errors.IsTransient(err)                // true
package errors
