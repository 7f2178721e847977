// Package streamtest provides probes for testing stream stages.
//
// A Subscriber is a sink whose demand and expectations are driven step by
// step from a test, and a Publisher is a source whose elements and terminal
// signal are driven the same way. Combined with streams.FromSinkAndSource,
// a pair of probes stands in for the peer of a flow under test:
//
//	in := streamtest.NewSubscriber[string](t)
//	out := streamtest.NewPublisher[string](t)
//	runFlowUnderTest(streams.FromSinkAndSource(in.Sink(), out.Source()).Flow())
//
//	in.RequestNext("first")
//	out.ExpectRequest()
//	out.SendError(errors.New("test error"))
//
// Each probe may be materialized only once. Its methods block until the
// probe is attached, and fail the test if an expectation is not met within
// Timeout.
package streamtest

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/code"
	"github.com/google/go-cmp/cmp"
)

// Timeout bounds how long a probe waits for an expected event.
var Timeout = 3 * time.Second

// errAttached is reported by a probe that is materialized a second time.
var errAttached = streams.Errorf(code.ConfigurationError, "probe is already attached")

// attachment hands over the port of a probe when it is materialized.
type attachment[P any] struct {
	taken *atomic.Bool
	ch    chan P
	port  P
	ok    bool
}

func newAttachment[P any]() attachment[P] {
	return attachment[P]{taken: new(atomic.Bool), ch: make(chan P, 1)}
}

func (a *attachment[P]) offer(p P) bool {
	if !a.taken.CompareAndSwap(false, true) {
		return false
	}
	a.ch <- p
	return true
}

func (a *attachment[P]) get(t testing.TB, what string) P {
	t.Helper()
	if !a.ok {
		select {
		case a.port = <-a.ch:
			a.ok = true
		case <-time.After(Timeout):
			t.Fatalf("%s was not materialized within %v", what, Timeout)
		}
	}
	return a.port
}

// A Subscriber is a test probe that consumes a stream. Its methods must be
// called from the test goroutine.
type Subscriber[T any] struct {
	t       testing.TB
	in      attachment[*streams.Inlet[T]]
	release chan struct{}
	done    bool
}

// NewSubscriber returns a subscriber probe that reports failures to t.
// The probe detaches when t ends, if it has not already done so.
func NewSubscriber[T any](t testing.TB) *Subscriber[T] {
	s := &Subscriber[T]{
		t:       t,
		in:      newAttachment[*streams.Inlet[T]](),
		release: make(chan struct{}),
	}
	t.Cleanup(s.finish)
	return s
}

// Sink returns the sink side of the probe. The sink grants no demand of its
// own, and remains attached until the probe observes a terminal signal or
// is cancelled.
func (s *Subscriber[T]) Sink() streams.Sink[T] {
	return streams.NewSink(func(ctx context.Context, in *streams.Inlet[T]) error {
		if !s.in.offer(in) {
			return errAttached
		}
		select {
		case <-s.release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (s *Subscriber[T]) inlet() *streams.Inlet[T] {
	s.t.Helper()
	return s.in.get(s.t, "Subscriber")
}

func (s *Subscriber[T]) finish() {
	if !s.done {
		s.done = true
		close(s.release)
	}
}

// recv waits up to d for the next element or terminal signal.
func (s *Subscriber[T]) recv(d time.Duration) (T, error) {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.inlet().Recv(ctx)
}

// Request grants n more elements of demand to the upstream.
func (s *Subscriber[T]) Request(n int64) {
	s.t.Helper()
	if err := s.inlet().Request(n); err != nil {
		s.t.Fatalf("Request(%d): %v", n, err)
	}
}

// ExpectNext checks that the next elements received are want, in order.
// It does not grant demand.
func (s *Subscriber[T]) ExpectNext(want ...T) {
	s.t.Helper()
	for i, w := range want {
		got, err := s.recv(Timeout)
		if err != nil {
			s.t.Fatalf("ExpectNext: element %d: got error %v", i+1, err)
		}
		if diff := cmp.Diff(w, got); diff != "" {
			s.t.Fatalf("ExpectNext: element %d (-want, +got):\n%s", i+1, diff)
		}
	}
}

// RequestNext grants one element of demand and checks that the element
// received is want.
func (s *Subscriber[T]) RequestNext(want T) {
	s.t.Helper()
	s.Request(1)
	s.ExpectNext(want)
}

// ExpectNoMessage checks that nothing arrives during d.
func (s *Subscriber[T]) ExpectNoMessage(d time.Duration) {
	s.t.Helper()
	got, err := s.recv(d)
	if !errors.Is(err, context.DeadlineExceeded) {
		s.t.Fatalf("ExpectNoMessage: got (%v, %v) within %v", got, err, d)
	}
}

// ExpectComplete checks that the upstream completes with no further
// elements, and detaches the probe.
func (s *Subscriber[T]) ExpectComplete() {
	s.t.Helper()
	got, err := s.recv(Timeout)
	if !errors.Is(err, io.EOF) {
		s.t.Fatalf("ExpectComplete: got (%v, %v), want completion", got, err)
	}
	s.finish()
}

// ExpectError checks that the upstream fails with no further elements, and
// detaches the probe. It returns the error reported by the upstream.
func (s *Subscriber[T]) ExpectError() error {
	s.t.Helper()
	got, err := s.recv(Timeout)
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.DeadlineExceeded) {
		s.t.Fatalf("ExpectError: got (%v, %v), want an error", got, err)
	}
	s.finish()
	return err
}

// Cancel cancels the upstream and detaches the probe.
func (s *Subscriber[T]) Cancel() {
	s.t.Helper()
	s.inlet().Cancel()
	s.finish()
}

// A Publisher is a test probe that produces a stream. Its methods must be
// called from the test goroutine.
type Publisher[T any] struct {
	t     testing.TB
	out   attachment[*streams.Outlet[T]]
	end   chan error
	ended bool
}

// NewPublisher returns a publisher probe that reports failures to t.
// The probe completes when t ends, if it has not already ended.
func NewPublisher[T any](t testing.TB) *Publisher[T] {
	p := &Publisher[T]{
		t:   t,
		out: newAttachment[*streams.Outlet[T]](),
		end: make(chan error, 1),
	}
	t.Cleanup(func() {
		if !p.ended {
			p.ended = true
			p.end <- nil
		}
	})
	return p
}

// Source returns the source side of the probe. The source emits only what
// the probe sends, and ends when the probe sends a terminal signal or the
// downstream cancels.
func (p *Publisher[T]) Source() streams.Source[T] {
	return streams.NewSource(func(ctx context.Context, out *streams.Outlet[T]) error {
		if !p.out.offer(out) {
			return errAttached
		}
		select {
		case err := <-p.end:
			return err
		case <-out.Cancelled():
			return streams.ErrCancelled
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (p *Publisher[T]) outlet() *streams.Outlet[T] {
	p.t.Helper()
	return p.out.get(p.t, "Publisher")
}

// ExpectRequest waits until the downstream has granted demand, and reports
// the number of elements outstanding.
func (p *Publisher[T]) ExpectRequest() int64 {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	n, err := p.outlet().AwaitDemand(ctx)
	if err != nil {
		p.t.Fatalf("ExpectRequest: %v", err)
	}
	return n
}

// SendNext emits each of vs in order, waiting for demand as needed.
func (p *Publisher[T]) SendNext(vs ...T) {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	for _, v := range vs {
		if err := p.outlet().Send(ctx, v); err != nil {
			p.t.Fatalf("SendNext(%v): %v", v, err)
		}
	}
}

func (p *Publisher[T]) sendEnd(err error) {
	p.t.Helper()
	p.outlet() // the source must be running to deliver the signal
	if p.ended {
		p.t.Fatal("Publisher has already ended")
	}
	p.ended = true
	p.end <- err
}

// SendComplete completes the stream.
func (p *Publisher[T]) SendComplete() {
	p.t.Helper()
	p.sendEnd(nil)
}

// SendError fails the stream with err.
func (p *Publisher[T]) SendError(err error) {
	p.t.Helper()
	if err == nil {
		p.t.Fatal("SendError: nil error")
	}
	p.sendEnd(err)
}

// ExpectCancellation checks that the downstream cancels the stream.
func (p *Publisher[T]) ExpectCancellation() {
	p.t.Helper()
	select {
	case <-p.outlet().Cancelled():
	case <-time.After(Timeout):
		p.t.Fatalf("ExpectCancellation: not cancelled within %v", Timeout)
	}
}
