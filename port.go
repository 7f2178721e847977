package streams

import (
	"context"
	"io"
	"math"
	"sync"

	"github.com/creachadair/streams/code"
	"github.com/eapache/queue"
)

// Pipe creates a live port connecting one producer to one consumer. The
// producer writes to the Outlet and the consumer reads from the Inlet.
//
// The consumer grants demand with Request (or implicitly with Next), and the
// producer may emit at most as many elements as the demand it has been
// granted; Send suspends the producer until demand is available. The window
// bounds how much demand Next keeps outstanding; values less than 1 are
// treated as 1.
//
// A port delivers exactly one terminal signal and cannot be reused.
func Pipe[T any](window int) (*Outlet[T], *Inlet[T]) {
	if window < 1 {
		window = 1
	}
	p := &port[T]{
		window:    int64(window),
		buf:       queue.New(),
		changed:   make(chan struct{}),
		cancelled: make(chan struct{}),
	}
	return &Outlet[T]{p: p}, &Inlet[T]{p: p}
}

// A port is the state shared by the two ends of a pipe.
type port[T any] struct {
	window int64

	mu      sync.Mutex
	buf     *queue.Queue  // elements emitted but not yet received
	demand  int64         // demand granted but not yet used
	done    bool          // a terminal signal was delivered by the producer
	err     error         // the terminal error, or nil for completion
	cut     bool          // the consumer cancelled
	changed chan struct{} // closed and replaced whenever the state changes

	cancelled chan struct{} // closed when the consumer cancels a live port
}

// notify wakes up all goroutines waiting for a state change.
// The caller must hold p.mu.
func (p *port[T]) notify() {
	close(p.changed)
	p.changed = make(chan struct{})
}

// sendErr reports why the producer may not emit, or nil.
// The caller must hold p.mu.
func (p *port[T]) sendErr() error {
	if p.cut {
		return ErrCancelled
	} else if p.done {
		return ErrClosed
	}
	return nil
}

// wait blocks until changed is closed or ctx ends.
func wait(ctx context.Context, changed <-chan struct{}) error {
	select {
	case <-changed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// An Outlet is the producing end of a port.
type Outlet[T any] struct{ p *port[T] }

// Send emits v, blocking until the consumer has granted demand for it or ctx
// ends. If the consumer has cancelled, Send reports ErrCancelled; if the
// producer has already terminated the port, Send reports ErrClosed.
func (o *Outlet[T]) Send(ctx context.Context, v T) error {
	p := o.p
	for {
		p.mu.Lock()
		if err := p.sendErr(); err != nil {
			p.mu.Unlock()
			return err
		}
		if p.demand > 0 {
			p.demand--
			p.buf.Add(v)
			p.notify()
			p.mu.Unlock()
			return nil
		}
		changed := p.changed
		p.mu.Unlock()
		if err := wait(ctx, changed); err != nil {
			return err
		}
	}
}

// TrySend emits v without blocking. If no demand is outstanding, the port is
// terminated with ErrDemandViolation, which TrySend also returns, and the
// consumer receives the same error after any elements already buffered.
func (o *Outlet[T]) TrySend(v T) error {
	p := o.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sendErr(); err != nil {
		return err
	}
	if p.demand == 0 {
		demandViolationsCount.Add(1)
		p.done, p.err = true, ErrDemandViolation
		p.notify()
		return ErrDemandViolation
	}
	p.demand--
	p.buf.Add(v)
	p.notify()
	return nil
}

// Demand reports the number of elements the producer may currently emit.
func (o *Outlet[T]) Demand() int64 {
	o.p.mu.Lock()
	defer o.p.mu.Unlock()
	return o.p.demand
}

// AwaitDemand blocks until the consumer has granted demand, and reports the
// amount outstanding. It reports an error if the port can no longer accept
// elements or ctx ends.
func (o *Outlet[T]) AwaitDemand(ctx context.Context) (int64, error) {
	p := o.p
	for {
		p.mu.Lock()
		if err := p.sendErr(); err != nil {
			p.mu.Unlock()
			return 0, err
		} else if p.demand > 0 {
			n := p.demand
			p.mu.Unlock()
			return n, nil
		}
		changed := p.changed
		p.mu.Unlock()
		if err := wait(ctx, changed); err != nil {
			return 0, err
		}
	}
}

// Cancelled returns a channel that is closed when the consumer cancels the
// port while it is live. A producer blocked on something other than Send
// should select on this channel to stop promptly.
func (o *Outlet[T]) Cancelled() <-chan struct{} { return o.p.cancelled }

// Complete delivers the completion signal. It has no effect if the port has
// already terminated or been cancelled.
func (o *Outlet[T]) Complete() { o.terminate(nil) }

// Fail delivers err as the terminal signal; Fail(nil) is Complete. It has no
// effect if the port has already terminated or been cancelled.
func (o *Outlet[T]) Fail(err error) { o.terminate(err) }

func (o *Outlet[T]) terminate(err error) {
	p := o.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || p.cut {
		return
	}
	p.done, p.err = true, err
	p.notify()
}

// An Inlet is the consuming end of a port.
type Inlet[T any] struct{ p *port[T] }

// Request grants the producer demand for n more elements. Demand accumulates
// and saturates at math.MaxInt64. Request reports an error with code
// InvalidDemand if n < 1; it has no effect once the port has terminated.
func (in *Inlet[T]) Request(n int64) error {
	if n < 1 {
		return Errorf(code.InvalidDemand, "request %d: demand must be positive", n)
	}
	p := in.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || p.cut {
		return nil
	}
	p.addDemand(n)
	p.notify()
	return nil
}

// addDemand adds n to the outstanding demand. The caller must hold p.mu.
func (p *port[T]) addDemand(n int64) {
	if p.demand > math.MaxInt64-n {
		p.demand = math.MaxInt64
	} else {
		p.demand += n
	}
}

// Recv returns the next element, blocking until one is available or the port
// terminates. Recv does not grant demand. After the last element, Recv
// reports io.EOF if the producer completed, or the producer's error if it
// failed. After Cancel, Recv reports ErrCancelled.
func (in *Inlet[T]) Recv(ctx context.Context) (T, error) {
	p := in.p
	for {
		p.mu.Lock()
		if p.cut {
			p.mu.Unlock()
			var zero T
			return zero, ErrCancelled
		} else if p.buf.Length() != 0 {
			v := p.buf.Remove().(T)
			p.mu.Unlock()
			return v, nil
		} else if p.done {
			err := p.err
			p.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			var zero T
			return zero, err
		}
		changed := p.changed
		p.mu.Unlock()
		if err := wait(ctx, changed); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Next is like Recv, but first tops up the outstanding demand to the port
// window whenever fewer than half of it remain requested or buffered.
func (in *Inlet[T]) Next(ctx context.Context) (T, error) {
	p := in.p
	p.mu.Lock()
	if !p.done && !p.cut {
		if have := p.demand + int64(p.buf.Length()); have <= p.window/2 {
			p.addDemand(p.window - have)
			p.notify()
		}
	}
	p.mu.Unlock()
	return in.Recv(ctx)
}

// Cancel tells the producer that no further elements are wanted and discards
// any buffered elements. Cancel is idempotent. Cancelling a port whose
// producer has already terminated only discards the buffer.
func (in *Inlet[T]) Cancel() {
	p := in.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cut {
		return
	}
	p.cut = true
	p.demand = 0
	p.buf = queue.New()
	if !p.done {
		portsCancelledCount.Add(1)
		close(p.cancelled)
	}
	p.notify()
}
