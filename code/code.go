// Package code defines error code values used by the streams packages.
package code

import (
	"context"
	"errors"
	"fmt"
)

// A Code is an error code that classifies the terminal signal of a stream,
// a connection, or an isolated task.
//
// Code values from and including -1000 to -1 are reserved for the codes
// defined below. The remainder of the space is available for application
// defined errors (see Register).
type Code int32

func (c Code) String() string {
	if s, ok := stdError[c]; ok {
		return s
	}
	return fmt.Sprintf("error code %d", c)
}

// An ErrCoder is a value that can report an error code value.
type ErrCoder interface {
	ErrCode() Code
}

// Err converts c to an error value, which is nil for code.NoError and
// otherwise an error value whose code is c.
func (c Code) Err() error {
	if c == NoError {
		return nil
	}
	return codeError(c)
}

type codeError Code

func (c codeError) Error() string {
	return fmt.Sprintf("[%d] %s", Code(c), Code(c).String())
}

func (c codeError) ErrCode() Code { return Code(c) }

// Pre-defined error codes.
const (
	NoError          Code = -1 // Denotes a nil error (used by FromError)
	SystemError      Code = -2 // Errors from the operating environment
	Cancelled        Code = -3 // Cancelled (context.Canceled or stream cancellation)
	DeadlineExceeded Code = -4 // Deadline exceeded (context.DeadlineExceeded)
	Closed           Code = -5 // The resource was shut down

	InvalidDemand       Code = -100 // A demand request of fewer than one element
	DemandViolation     Code = -101 // A producer emitted beyond granted demand
	FramingSizeExceeded Code = -102 // A frame longer than the configured maximum
	FramingTruncated    Code = -103 // Input ended inside an unterminated frame
	TransportError      Code = -104 // Transport failure or unsupported half-close
	ConfigurationError  Code = -105 // Invalid or unresolvable configuration
	OperationFailure    Code = -106 // An isolated task reported an error or panicked
)

var stdError = map[Code]string{
	NoError:          "no error (success)",
	SystemError:      "system error",
	Cancelled:        "cancelled",
	DeadlineExceeded: "deadline exceeded",
	Closed:           "closed",

	InvalidDemand:       "invalid demand",
	DemandViolation:     "demand violation",
	FramingSizeExceeded: "framing size exceeded",
	FramingTruncated:    "truncated frame",
	TransportError:      "transport error",
	ConfigurationError:  "configuration error",
	OperationFailure:    "operation failure",
}

// Register adds a new Code value with the specified message string.  This
// function will panic if the proposed value is already registered.
func Register(value int32, message string) Code {
	code := Code(value)
	if s, ok := stdError[code]; ok {
		panic(fmt.Sprintf("code %d is already registered for %q", code, s))
	}
	stdError[code] = message
	return code
}

// FromError returns a Code to categorize the specified error.
// If err == nil, it returns code.NoError.
// If err is (or wraps) an ErrCoder, it returns the reported code value.
// If err is (or wraps) context.Canceled, it returns code.Cancelled.
// If err is (or wraps) context.DeadlineExceeded, it returns code.DeadlineExceeded.
// Otherwise it returns code.SystemError.
func FromError(err error) Code {
	if err == nil {
		return NoError
	}
	var c ErrCoder
	if errors.As(err, &c) {
		return c.ErrCode()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, context.DeadlineExceeded):
		return DeadlineExceeded
	default:
		return SystemError
	}
}
