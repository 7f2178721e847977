package streams

import (
	"context"
	"sync"
)

// A Duplex pairs an independently built Sink and Source into one
// bidirectional handle. Elements arriving from the peer are pushed into the
// sink (the read side); elements sent to the peer are pulled from the source
// (the write side).
//
// The directions of a Duplex are materialized together but have independent
// lifecycles: the read side ending does not end the write side, nor the
// reverse, unless the Duplex was built with FromSinkAndSourceCoupled. For
// example, combining Cancelled with a source that never completes gives a
// write-only connection that is closed for reading from the moment it is
// attached.
type Duplex[In, Out any] struct {
	sink    Sink[In]
	source  Source[Out]
	coupled bool
}

// FromSinkAndSource returns a Duplex whose read side is sink and whose write
// side is src.
func FromSinkAndSource[In, Out any](sink Sink[In], src Source[Out]) Duplex[In, Out] {
	return Duplex[In, Out]{sink: sink, source: src}
}

// FromSinkAndSourceCoupled is like FromSinkAndSource, but the termination of
// either side ends the other: when the sink finishes the source is stopped,
// and when the source finishes the sink is cancelled.
func FromSinkAndSourceCoupled[In, Out any](sink Sink[In], src Source[Out]) Duplex[In, Out] {
	return Duplex[In, Out]{sink: sink, source: src, coupled: true}
}

// Sink returns the read side of d.
func (d Duplex[In, Out]) Sink() Sink[In] { return d.sink }

// Source returns the write side of d.
func (d Duplex[In, Out]) Source() Source[Out] { return d.source }

// Coupled reports whether the directions of d terminate together.
func (d Duplex[In, Out]) Coupled() bool { return d.coupled }

// Flow returns d as a duplex Flow, so that it can be used wherever a
// connection handler is expected.
func (d Duplex[In, Out]) Flow() Flow[In, Out] {
	return Flow[In, Out]{duplex: true, run: d.run}
}

func (d Duplex[In, Out]) run(ctx context.Context, in *Inlet[In], out *Outlet[Out]) error {
	sctx, stopSink := context.WithCancel(ctx)
	defer stopSink()
	pctx, stopSource := context.WithCancel(ctx)
	defer stopSource()

	var wg sync.WaitGroup
	var sinkErr, srcErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		sinkErr = consume(sctx, d.sink, in)
		if d.coupled {
			stopSource()
		}
		sinkErr = stoppedOK(ctx, sctx, sinkErr)
	}()
	go func() {
		defer wg.Done()
		err := guard(func() error { return d.source.run(pctx, out) })
		if d.coupled {
			in.Cancel()
			stopSink()
		}
		srcErr = terminate(out, stoppedOK(ctx, pctx, err))
	}()
	wg.Wait()

	if sinkErr != nil {
		return sinkErr
	}
	return srcErr
}

// stoppedOK reports err, or nil if err was caused by the coupling of a
// duplex cancelling ctx while its parent is still live.
func stoppedOK(parent, ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && parent.Err() == nil {
		return nil
	}
	return err
}
