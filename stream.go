package streams

import (
	"context"
	"sync"

	"github.com/creachadair/streams/code"
)

// A Source is a blueprint for a producer of T values. A Source holds no
// state of its own: each time it is materialized it runs afresh against a new
// port, so the same Source may be attached to any number of graphs.
//
// The zero Source is not valid; materializing it will panic.
type Source[T any] struct {
	run func(context.Context, *Outlet[T]) error
}

// NewSource constructs a Source from a function that emits values on out.
// The function returns nil to complete the stream or an error to fail it; it
// should not call Complete or Fail itself. If the consumer cancels, Send
// reports ErrCancelled and run should return promptly.
func NewSource[T any](run func(ctx context.Context, out *Outlet[T]) error) Source[T] {
	return Source[T]{run: run}
}

// RunWith materializes s connected to sink. It is shorthand for Connect.
func (s Source[T]) RunWith(ctx context.Context, sink Sink[T], opts *Options) *Future[Done] {
	return Connect(ctx, s, sink, opts)
}

// A Sink is a blueprint for a terminal consumer of T values. Like a Source,
// a Sink may be materialized any number of times.
//
// The zero Sink is not valid; materializing it will panic.
type Sink[T any] struct {
	run func(context.Context, *Inlet[T]) error
}

// NewSink constructs a Sink from a function that consumes values from in.
// When run returns the inlet is cancelled, so a sink that stops early
// releases its producer.
func NewSink[T any](run func(ctx context.Context, in *Inlet[T]) error) Sink[T] {
	return Sink[T]{run: run}
}

// A Flow is a blueprint for a stage with one input and one output.
//
// Flows come in two kinds. A transform (built by NewFlow) relates its output
// to its input, so cancellation of its output is propagated to its input. A
// duplex (built from a Duplex) has two unrelated directions, and each is torn
// down on its own.
type Flow[In, Out any] struct {
	run    func(context.Context, *Inlet[In], *Outlet[Out]) error
	duplex bool
}

// NewFlow constructs a transform Flow from a function that reads from in and
// writes to out. The same conventions apply as for NewSource and NewSink.
func NewFlow[In, Out any](run func(ctx context.Context, in *Inlet[In], out *Outlet[Out]) error) Flow[In, Out] {
	return Flow[In, Out]{run: run}
}

// IsDuplex reports whether f has independent input and output directions.
func (f Flow[In, Out]) IsDuplex() bool { return f.duplex }

// Connect materializes src and sink over a fresh port and returns a future
// that resolves when both have finished. The future reports the error that
// terminated the sink, or else the error that terminated the source.
// Cancellation by the sink is not an error.
//
// If opts == nil, the options attached to ctx (if any) are used.
func Connect[T any](ctx context.Context, src Source[T], sink Sink[T], opts *Options) *Future[Done] {
	if opts == nil {
		opts = optionsFrom(ctx)
	}
	ctx = withOptions(ctx, opts)
	log := opts.logFunc()

	out, in := Pipe[T](opts.window())
	f, resolve := NewFuture[Done]()
	graphsMaterialized.Add(1)
	graphsActiveGauge.Add(1)

	srcErr := make(chan error, 1)
	go func() { srcErr <- produce(ctx, src, out) }()
	go func() {
		err := consume(ctx, sink, in)
		if serr := <-srcErr; err == nil {
			err = serr
		}
		graphsActiveGauge.Add(-1)
		if err != nil && code.FromError(err) != code.Cancelled {
			graphsFailedCount.Add(1)
			log("Graph failed: %v", err)
		}
		resolve(Done{}, err)
	}()
	return f
}

// Via returns a Source that feeds the output of src through f.
func Via[A, B any](src Source[A], f Flow[A, B]) Source[B] {
	return Source[B]{run: func(ctx context.Context, out *Outlet[B]) error {
		o, i := pipeFor[A](ctx)
		srcErr := make(chan error, 1)
		go func() { srcErr <- produce(ctx, src, o) }()
		err := runFlow(ctx, f, i, out)
		if serr := <-srcErr; err == nil {
			err = serr
		}
		return err
	}}
}

// To returns a Sink that feeds its input through f into sink.
func To[A, B any](f Flow[A, B], sink Sink[B]) Sink[A] {
	return Sink[A]{run: func(ctx context.Context, in *Inlet[A]) error {
		o, i := pipeFor[B](ctx)
		sinkErr := make(chan error, 1)
		go func() { sinkErr <- consume(ctx, sink, i) }()
		err := runFlow(ctx, f, in, o)
		if serr := <-sinkErr; serr != nil {
			return serr
		}
		return err
	}}
}

// Compose returns a Flow that feeds the output of f into g. The result is a
// duplex if either f or g is.
func Compose[A, B, C any](f Flow[A, B], g Flow[B, C]) Flow[A, C] {
	return Flow[A, C]{duplex: f.duplex || g.duplex, run: func(ctx context.Context, in *Inlet[A], out *Outlet[C]) error {
		o, i := pipeFor[B](ctx)
		ferr := make(chan error, 1)
		go func() { ferr <- runFlow(ctx, f, in, o) }()
		err := runFlow(ctx, g, i, out)
		if e := <-ferr; err == nil {
			err = e
		}
		return err
	}}
}

// Join connects left and right into a closed loop: the output of each is the
// input of the other. Join is the in-memory counterpart of attaching a flow
// to a connection whose peer runs the other flow. The future resolves when
// both flows have finished.
func Join[A, B any](ctx context.Context, left Flow[A, B], right Flow[B, A], opts *Options) *Future[Done] {
	if opts == nil {
		opts = optionsFrom(ctx)
	}
	ctx = withOptions(ctx, opts)

	oa, ia := Pipe[A](opts.window())
	ob, ib := Pipe[B](opts.window())
	f, resolve := NewFuture[Done]()
	graphsMaterialized.Add(1)
	graphsActiveGauge.Add(1)

	var wg sync.WaitGroup
	var lerr, rerr error
	wg.Add(2)
	go func() { defer wg.Done(); lerr = runFlow(ctx, left, ia, ob) }()
	go func() { defer wg.Done(); rerr = runFlow(ctx, right, ib, oa) }()
	go func() {
		wg.Wait()
		graphsActiveGauge.Add(-1)
		if lerr == nil {
			lerr = rerr
		}
		if lerr != nil && code.FromError(lerr) != code.Cancelled {
			graphsFailedCount.Add(1)
		}
		resolve(Done{}, lerr)
	}()
	return f
}

// produce runs src against out and delivers its terminal signal.
func produce[T any](ctx context.Context, src Source[T], out *Outlet[T]) error {
	if src.run == nil {
		panic("materializing a nil source")
	}
	return terminate(out, guard(func() error { return src.run(ctx, out) }))
}

// consume runs sink against in, and cancels in when the sink returns.
func consume[T any](ctx context.Context, sink Sink[T], in *Inlet[T]) error {
	if sink.run == nil {
		panic("materializing a nil sink")
	}
	err := guard(func() error { return sink.run(ctx, in) })
	in.Cancel()
	if isCancel(err) {
		return nil
	}
	return err
}

// runFlow runs f between in and out. For a transform, cancellation of out
// is forwarded to in so that a stage waiting for input is released.
func runFlow[A, B any](ctx context.Context, f Flow[A, B], in *Inlet[A], out *Outlet[B]) error {
	if f.run == nil {
		panic("materializing a nil flow")
	}
	if !f.duplex {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-out.Cancelled():
				in.Cancel()
			case <-stop:
			}
		}()
	}
	err := guard(func() error { return f.run(ctx, in, out) })
	in.Cancel()
	return terminate(out, err)
}

// terminate delivers the terminal signal for err on out, and returns err
// unless it denotes cancellation by the consumer.
func terminate[T any](out *Outlet[T], err error) error {
	if err == nil || isCancel(err) {
		out.Complete()
		return nil
	}
	out.Fail(err)
	return err
}

// guard calls run, converting a panic into an error.
func guard(run func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Errorf(code.SystemError, "stage panicked: %v", p)
		}
	}()
	return run()
}
