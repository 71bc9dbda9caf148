package engine

import "fmt"

// ConstructError reports a configuration rejected by an engine constructor.
// A failed construct leaves nothing behind to release.
type ConstructError struct {
	Field  string
	Reason string
}

func (e *ConstructError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("construct engine: %s", e.Reason)
	}
	return fmt.Sprintf("construct engine: %s: %s", e.Field, e.Reason)
}

func NewConstructError(field, format string, args ...any) *ConstructError {
	return &ConstructError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RuntimeError reports a failure inside a bound engine while advancing or
// resetting. The run that produced it is over; callers must not retry.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func NewRuntimeError(op string, err error) *RuntimeError {
	return &RuntimeError{Op: op, Err: err}
}
