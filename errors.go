package streams

import (
	"errors"
	"fmt"

	"github.com/creachadair/streams/code"
)

// Error is the concrete type of coded errors reported by this module.
type Error struct {
	Code    code.Code
	Message string
	Err     error // the underlying error, if any
}

// Error renders e to a human-readable string for the error interface.
func (e *Error) Error() string { return fmt.Sprintf("[%d] %s", e.Code, e.Message) }

// ErrCode reports the error code of e, satisfying code.ErrCoder.
func (e *Error) ErrCode() code.Code { return e.Code }

// Unwrap returns the underlying error of e, if any.
func (e *Error) Unwrap() error { return e.Err }

// Errorf returns an error value of concrete type *Error having the specified
// code and formatted message string. If the arguments include a %w verb, the
// wrapped error is recorded as the underlying error.
func Errorf(c code.Code, msg string, args ...any) error {
	err := fmt.Errorf(msg, args...)
	return &Error{Code: c, Message: err.Error(), Err: errors.Unwrap(err)}
}

var (
	// ErrCancelled is reported to a producer whose consumer has cancelled,
	// and to a consumer that reads after cancelling.
	ErrCancelled = &Error{Code: code.Cancelled, Message: "stream cancelled"}

	// ErrClosed is reported by a producer that emits after it has already
	// delivered a terminal signal.
	ErrClosed = &Error{Code: code.Closed, Message: "send on terminated stream"}

	// ErrDemandViolation is the terminal error of a port whose producer
	// emitted an element with no outstanding demand.
	ErrDemandViolation = &Error{Code: code.DemandViolation, Message: "element emitted without demand"}
)

// isCancel reports whether err denotes a cancellation by the consumer.
func isCancel(err error) bool { return errors.Is(err, ErrCancelled) }
