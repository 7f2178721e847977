// Package hub implements dynamic fan-in and fan-out points for streams.
//
// A MergeHub merges the elements of any number of producers, which may attach
// and detach at any time, into a single stream. A BroadcastHub delivers each
// element of a single stream to every consumer attached at the moment the
// element is published. A Bus combines the two, so that every element sent
// by any producer reaches every attached consumer.
//
// Hubs are long-lived: unlike ordinary blueprints, the Sink and Source of a
// hub refer to shared running state, and materializing them attaches a
// participant to the hub rather than creating a new stream.
package hub

import (
	"context"
	"fmt"
	"log"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/code"
)

// DefaultBufferSize is the buffer size used when an option is unset.
const DefaultBufferSize = 16

var (
	// ErrHubClosed is reported to participants of a hub that has been shut
	// down.
	ErrHubClosed = &streams.Error{Code: code.Closed, Message: "hub is closed"}

	// ErrAlreadyAttached is reported when a single-use end of a hub is
	// materialized more than once.
	ErrAlreadyAttached = &streams.Error{Code: code.ConfigurationError, Message: "hub endpoint is already attached"}
)

func bufferSize(n int) int {
	if n < 1 {
		return DefaultBufferSize
	}
	return n
}

func logFunc(logger *log.Logger) func(string, ...any) {
	if logger == nil {
		return func(string, ...any) {}
	}
	return func(msg string, args ...any) { logger.Output(2, fmt.Sprintf(msg, args...)) }
}

// A signal wakes all goroutines waiting for a change of state. The zero
// value is not ready for use; call newSignal. The caller must hold the lock
// protecting the state for both methods.
type signal struct{ ch chan struct{} }

func newSignal() signal { return signal{ch: make(chan struct{})} }

// changed returns a channel that is closed at the next call to notify.
func (s *signal) changed() <-chan struct{} { return s.ch }

func (s *signal) notify() {
	close(s.ch)
	s.ch = make(chan struct{})
}

// linked returns a context that ends when either ctx or stop ends.
func linked(ctx, stop context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	unlink := context.AfterFunc(stop, cancel)
	return ctx, func() { unlink(); cancel() }
}
