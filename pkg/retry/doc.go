// Package retry runs an operation with exponential backoff while it keeps
// failing with transient errors.
//
// Classification comes from the errors package: an error that is invalid or
// fatal ends the loop at once, so only conditions that may clear on their own
// are retried.
//
//	err := retry.Do(ctx, retry.Startup(), client.Dial)
//
// Cancelling ctx interrupts the pause between attempts.
package retry
