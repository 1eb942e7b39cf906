// Package errs defines the error taxonomy shared across the runtime's
// subsystems, following the teacher's fmt.Errorf("...: %w", err) wrapping
// idiom but giving callers a stable Kind to branch on.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the runtime's well-known
// categories so callers can react without string-matching messages.
type Kind string

const (
	NotFound           Kind = "not_found"
	Conflict           Kind = "conflict"
	Capacity           Kind = "capacity"
	Timeout            Kind = "timeout"
	Cancelled          Kind = "cancelled"
	ProcessExit        Kind = "process_exit"
	ProcessError       Kind = "process_error"
	HeartbeatTimeout   Kind = "heartbeat_timeout"
	ValidationFailed   Kind = "validation_failed"
	PersistenceFailure Kind = "persistence_failure"
)

// Error is the concrete error type returned by every subsystem in this
// module. Op names the failing operation ("supervisor.Create",
// "dispatcher.ExecuteTask", ...) and Err carries the underlying cause,
// if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// New builds an *Error of an arbitrary Kind, for call sites that choose
// their Kind dynamically (the dispatcher's cancellation path picks
// between Cancelled and ProcessExit depending on why it's cancelling).
func New(kind Kind, op string, err error) *Error { return new_(kind, op, err) }

func NotFoundf(op string, err error) *Error           { return new_(NotFound, op, err) }
func Conflictf(op string, err error) *Error           { return new_(Conflict, op, err) }
func Capacityf(op string, err error) *Error           { return new_(Capacity, op, err) }
func Timeoutf(op string, err error) *Error            { return new_(Timeout, op, err) }
func Cancelledf(op string, err error) *Error          { return new_(Cancelled, op, err) }
func ProcessExitf(op string, err error) *Error        { return new_(ProcessExit, op, err) }
func ProcessErrorf(op string, err error) *Error       { return new_(ProcessError, op, err) }
func HeartbeatTimeoutf(op string, err error) *Error   { return new_(HeartbeatTimeout, op, err) }
func ValidationFailedf(op string, err error) *Error   { return new_(ValidationFailed, op, err) }
func PersistenceFailuref(op string, err error) *Error { return new_(PersistenceFailure, op, err) }

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
