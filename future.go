package streams

import (
	"context"
	"sync"

	"github.com/creachadair/streams/code"
)

// State is the state of a Future.
type State int

// The states of a Future. A Future begins in StatePending and moves to exactly
// one of the other states when it is resolved.
const (
	StatePending   State = iota // not yet resolved
	StateCompleted              // resolved with a value
	StateFailed                 // resolved with an error
	StateCancelled              // resolved by cancellation
)

var stateName = [...]string{"pending", "completed", "failed", "cancelled"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateName) {
		return stateName[s]
	}
	return "invalid"
}

// Done is the value of a Future that carries no result beyond its state.
type Done struct{}

// A Future is a handle for a result that becomes available later, such as the
// completion of a materialized graph or the result of an isolated task. A
// Future is resolved exactly once; its methods are safe for concurrent use.
type Future[T any] struct {
	done chan struct{}
	once sync.Once

	// These fields are written once, before done is closed.
	state State
	value T
	err   error
}

// NewFuture returns a pending future and a function that resolves it. The
// future is StateCompleted if err == nil, StateCancelled if err has code
// Cancelled, and StateFailed otherwise. Calls to resolve after the first
// have no effect.
func NewFuture[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.resolve
}

// Resolved returns a future that is already resolved with v and err.
func Resolved[T any](v T, err error) *Future[T] {
	f, resolve := NewFuture[T]()
	resolve(v, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		switch {
		case err == nil:
			f.state = StateCompleted
		case code.FromError(err) == code.Cancelled:
			f.state = StateCancelled
		default:
			f.state = StateFailed
		}
		f.value, f.err = v, err
		close(f.done)
	})
}

// Done returns a channel that is closed when f is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// State reports the current state of f without blocking.
func (f *Future[T]) State() State {
	select {
	case <-f.done:
		return f.state
	default:
		return StatePending
	}
}

// Wait blocks until f is resolved or ctx ends, and reports the result. If ctx
// ends first, Wait reports the context error and f remains pending.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get blocks until f is resolved and reports the result.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}
