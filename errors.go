package svcrun

import (
	"errors"
	"fmt"
)

// Common errors returned by runtime operations
var (
	// ErrChannelClosed indicates a send or receive was attempted after the
	// peer side of the channel has gone away
	ErrChannelClosed = errors.New("svcrun: channel closed")

	// ErrNotRunning indicates a relay producer was requested from a handle
	// that has never built a runner
	ErrNotRunning = errors.New("svcrun: service not running")

	// ErrRunnerStarted indicates Start was called twice on the same runner
	ErrRunnerStarted = errors.New("svcrun: runner already started")

	// ErrSchedulerStopped indicates a task could not be spawned because the
	// scheduler is shutting down
	ErrSchedulerStopped = errors.New("svcrun: scheduler stopped")
)

// OpError represents an error from a runtime operation
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Service is the service identifier involved in the operation
	Service string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	return fmt.Sprintf("svcrun %s %q: %v", e.Op.String(), e.Service, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}
