package hub

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/metrics"
	"github.com/eapache/queue"
	"github.com/google/uuid"
)

// MergeOptions control the behaviour of a MergeHub.
// A nil *MergeOptions provides sensible defaults.
type MergeOptions struct {
	// The number of elements buffered between the producers and the merged
	// output. When the buffer is full, producers wait for room. A value less
	// than 1 uses DefaultBufferSize.
	BufferSize int

	// If not nil, send debug logs here.
	Logger *log.Logger
}

// A MergeHub is a fan-in point: the elements sent by any number of producers
// are merged into a single output stream.
//
// Each materialization of Sink attaches one producer. Producers may attach
// and detach at any time; the elements of each producer appear in the merged
// output in the order that producer sent them, interleaved arbitrarily with
// the elements of the others. A producer that completes or fails detaches
// from the hub without affecting the other producers or the output.
//
// The merged output (Source) may be materialized only once. The hub shuts
// down when that materialization ends, or when Shutdown is called.
type MergeHub[T any] struct {
	size   int
	log    func(string, ...any)
	stats  *metrics.M
	ctx    context.Context // ends at shutdown
	cancel context.CancelFunc

	mu        sync.Mutex
	buf       *queue.Queue
	producers map[uuid.UUID]struct{}
	attached  bool // the output has been materialized
	closed    bool
	sig       signal
}

// NewMergeHub constructs a new, empty MergeHub.
func NewMergeHub[T any](opts *MergeOptions) *MergeHub[T] {
	if opts == nil {
		opts = new(MergeOptions)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MergeHub[T]{
		size:      bufferSize(opts.BufferSize),
		log:       logFunc(opts.Logger),
		stats:     metrics.New(),
		ctx:       ctx,
		cancel:    cancel,
		buf:       queue.New(),
		producers: make(map[uuid.UUID]struct{}),
		sig:       newSignal(),
	}
}

// Sink returns a Sink that attaches a new producer to h each time it is
// materialized. If h has been shut down, the sink fails with ErrHubClosed.
func (h *MergeHub[T]) Sink() streams.Sink[T] { return streams.NewSink(h.produce) }

// Source returns the merged output of h. Only one materialization of the
// Source may be live; attaching a second fails it with ErrAlreadyAttached.
func (h *MergeHub[T]) Source() streams.Source[T] { return streams.NewSource(h.merge) }

// Producers reports the number of producers currently attached to h.
func (h *MergeHub[T]) Producers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.producers)
}

// Stats reports a snapshot of the metrics for h.
func (h *MergeHub[T]) Stats() metrics.Snapshot { return h.stats.Snapshot() }

// Done returns a channel that is closed when h shuts down.
func (h *MergeHub[T]) Done() <-chan struct{} { return h.ctx.Done() }

// Shutdown stops h. Buffered elements are discarded, attached producers
// fail with ErrHubClosed, and the merged output completes. Shutdown is
// idempotent.
func (h *MergeHub[T]) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.buf = queue.New()
	h.sig.notify()
	h.cancel()
	h.log("MergeHub shut down with %d producers attached", len(h.producers))
}

func (h *MergeHub[T]) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *MergeHub[T]) attach() (uuid.UUID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return uuid.Nil, ErrHubClosed
	}
	id := uuid.New()
	h.producers[id] = struct{}{}
	h.stats.Count("producers.attached", 1)
	h.stats.Add("producers.active", 1)
	return id, nil
}

func (h *MergeHub[T]) detach(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.producers, id)
	h.stats.Add("producers.active", -1)
}

// produce is the body of one producer attached via Sink.
func (h *MergeHub[T]) produce(ctx context.Context, in *streams.Inlet[T]) error {
	id, err := h.attach()
	if err != nil {
		return err
	}
	defer h.detach(id)

	lctx, stop := linked(ctx, h.ctx)
	defer stop()
	for {
		v, err := in.Next(lctx)
		if errors.Is(err, io.EOF) {
			return nil
		} else if h.isClosed() {
			return ErrHubClosed
		} else if ctx.Err() != nil {
			return ctx.Err()
		} else if err != nil {
			// A failed producer detaches; the hub carries on.
			h.stats.Count("producers.failed", 1)
			h.log("Producer %v failed: %v", id, err)
			return nil
		}
		if err := h.offer(lctx, v); err != nil {
			return err
		}
	}
}

// offer adds v to the buffer, waiting for room if necessary.
func (h *MergeHub[T]) offer(ctx context.Context, v T) error {
	h.mu.Lock()
	for {
		if h.closed {
			h.mu.Unlock()
			return ErrHubClosed
		} else if h.buf.Length() < h.size {
			h.buf.Add(v)
			h.sig.notify()
			h.mu.Unlock()
			h.stats.Count("elements.offered", 1)
			return nil
		}
		changed := h.sig.changed()
		h.mu.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			if h.isClosed() {
				return ErrHubClosed
			}
			return ctx.Err()
		}
		h.mu.Lock()
	}
}

// merge is the body of the output attached via Source.
func (h *MergeHub[T]) merge(ctx context.Context, out *streams.Outlet[T]) error {
	h.mu.Lock()
	if h.attached {
		h.mu.Unlock()
		return ErrAlreadyAttached
	}
	h.attached = true
	h.mu.Unlock()
	defer h.Shutdown()

	lctx, stop := linked(ctx, h.ctx)
	defer stop()
	for {
		h.mu.Lock()
		if h.buf.Length() != 0 {
			v := h.buf.Remove().(T)
			h.sig.notify()
			h.mu.Unlock()
			if err := out.Send(lctx, v); err != nil {
				return h.stopped(ctx, err)
			}
			h.stats.Count("elements.merged", 1)
			continue
		} else if h.closed {
			h.mu.Unlock()
			return nil
		}
		changed := h.sig.changed()
		h.mu.Unlock()

		select {
		case <-changed:
		case <-out.Cancelled():
			return streams.ErrCancelled
		case <-lctx.Done():
			return h.stopped(ctx, lctx.Err())
		}
	}
}

// stopped reports err, or nil if err is due to h shutting down.
func (h *MergeHub[T]) stopped(ctx context.Context, err error) error {
	if ctx.Err() == nil && h.isClosed() {
		return nil
	}
	return err
}
