package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass is the recovery policy attached to an error
type ErrorClass int

const (
	// ErrorTransient: a transport hiccup; the pipeline moves on
	ErrorTransient ErrorClass = iota
	// ErrorInvalid: bad input or configuration; the input is dropped
	ErrorInvalid
	// ErrorFatal: the process cannot do its job and should stop
	ErrorFatal
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	}
	return "unknown"
}

var (
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrShuttingDown   = errors.New("shutting down")

	ErrNoConnection      = errors.New("no connection")
	ErrConnectionTimeout = errors.New("timed out")

	ErrInvalidData      = errors.New("invalid data")
	ErrParsingFailed    = errors.New("parsing failed")
	ErrUnknownFrameKind = errors.New("unknown frame kind")

	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing configuration")
)

// sentinelClass classifies unwrapped errors by the sentinel they carry.
// Checked in order; the first match wins.
var sentinelClass = []struct {
	target error
	class  ErrorClass
}{
	{ErrInvalidData, ErrorInvalid},
	{ErrParsingFailed, ErrorInvalid},
	{ErrUnknownFrameKind, ErrorInvalid},
	{ErrInvalidConfig, ErrorFatal},
	{ErrMissingConfig, ErrorFatal},
	{ErrShuttingDown, ErrorTransient},
	{ErrNoConnection, ErrorTransient},
	{ErrConnectionTimeout, ErrorTransient},
	{context.Canceled, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
}

// Socket errors from the net package only differ by message
var transientPatterns = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"network is unreachable",
	"broken pipe",
	"temporary",
}

// ClassifiedError records where an error happened and how to treat it
type ClassifiedError struct {
	Class     ErrorClass
	Component string
	Operation string
	Action    string
	Err       error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s.%s: %s failed: %v", e.Component, e.Operation, e.Action, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

func wrap(class ErrorClass, err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Component: component,
		Operation: operation,
		Action:    action,
		Err:       err,
	}
}

// WrapTransient marks err as a transient failure of component.operation
func WrapTransient(err error, component, operation, action string) error {
	return wrap(ErrorTransient, err, component, operation, action)
}

// WrapInvalid marks err as caused by bad input
func WrapInvalid(err error, component, operation, action string) error {
	return wrap(ErrorInvalid, err, component, operation, action)
}

// WrapFatal marks err as unrecoverable
func WrapFatal(err error, component, operation, action string) error {
	return wrap(ErrorFatal, err, component, operation, action)
}

// Classify returns the class of err. The outermost ClassifiedError wins,
// then known sentinels, then socket error messages. Anything else is
// treated as transient, including nil.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	for _, s := range sentinelClass {
		if errors.Is(err, s.target) {
			return s.class
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ErrorTransient
		}
	}
	if strings.Contains(msg, "panic") {
		return ErrorFatal
	}
	return ErrorTransient
}

// IsTransient reports whether err is non-nil and transient
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ErrorTransient
}

// IsInvalid reports whether err is non-nil and caused by bad input
func IsInvalid(err error) bool {
	return err != nil && Classify(err) == ErrorInvalid
}

// IsFatal reports whether err is non-nil and unrecoverable
func IsFatal(err error) bool {
	return err != nil && Classify(err) == ErrorFatal
}

// Is mirrors the standard library so callers need a single errors import
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As mirrors the standard library
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New mirrors the standard library
func New(text string) error {
	return errors.New(text)
}
