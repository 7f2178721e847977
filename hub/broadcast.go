package hub

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/metrics"
	"github.com/eapache/queue"
	"github.com/google/uuid"
)

// Overflow selects what a BroadcastHub does with an element that does not
// fit into the queue of a consumer.
type Overflow int

const (
	// Backpressure holds each element until every attached consumer has room
	// for it, so the slowest consumer governs the rate of the upstream.
	Backpressure Overflow = iota

	// DropOldest discards the oldest queued element of a full consumer to
	// make room for the new one.
	DropOldest

	// DropNewest leaves the queue of a full consumer unchanged, so that
	// consumer misses the new element.
	DropNewest
)

var overflowName = [...]string{"backpressure", "drop-oldest", "drop-newest"}

func (o Overflow) String() string {
	if o >= 0 && int(o) < len(overflowName) {
		return overflowName[o]
	}
	return "invalid"
}

// BroadcastOptions control the behaviour of a BroadcastHub.
// A nil *BroadcastOptions provides sensible defaults.
type BroadcastOptions struct {
	// The capacity of the queue of each consumer. A value less than 1 uses
	// DefaultBufferSize.
	BufferSize int

	// What to do when an element does not fit into the queue of a consumer.
	// The default is Backpressure.
	Overflow Overflow

	// The number of most recent elements retained for consumers that attach
	// later. By default no elements are retained, and a consumer receives
	// only elements published after it attaches.
	Replay int

	// If positive, the hub accepts no elements from upstream until at least
	// this many consumers have attached.
	StartAfter int

	// If not nil, send debug logs here.
	Logger *log.Logger
}

// A BroadcastHub is a fan-out point: each element of a single upstream is
// delivered to every consumer attached when the element is published.
//
// The upstream attaches by materializing Sink, which may be done only once.
// Each materialization of Source attaches a new consumer. Elements published
// while no consumer is attached are discarded, apart from those retained for
// replay. When the upstream completes or fails, each consumer receives the
// same terminal signal after the elements already in its queue.
type BroadcastHub[T any] struct {
	size       int
	overflow   Overflow
	replaySize int
	startAfter int
	log        func(string, ...any)
	stats      *metrics.M
	ctx        context.Context // ends at shutdown
	cancel     context.CancelFunc

	mu        sync.Mutex
	consumers map[uuid.UUID]*consumer
	seen      int          // consumers ever attached
	replay    *queue.Queue // most recent elements, for replay
	upstream  bool         // the sink has been materialized
	done      bool         // the upstream has terminated
	err       error        // the terminal error of the upstream
	closed    bool
	sig       signal
}

type consumer struct {
	id    uuid.UUID
	buf   *queue.Queue
	stats *metrics.M
}

// NewBroadcastHub constructs a new BroadcastHub with no consumers.
func NewBroadcastHub[T any](opts *BroadcastOptions) *BroadcastHub[T] {
	if opts == nil {
		opts = new(BroadcastOptions)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BroadcastHub[T]{
		size:       bufferSize(opts.BufferSize),
		overflow:   opts.Overflow,
		replaySize: max(opts.Replay, 0),
		startAfter: opts.StartAfter,
		log:        logFunc(opts.Logger),
		stats:      metrics.New(),
		ctx:        ctx,
		cancel:     cancel,
		consumers:  make(map[uuid.UUID]*consumer),
		replay:     queue.New(),
		sig:        newSignal(),
	}
}

// Sink returns the upstream input of h. Only one materialization of the
// Sink may be live; attaching a second fails it with ErrAlreadyAttached.
func (h *BroadcastHub[T]) Sink() streams.Sink[T] { return streams.NewSink(h.publish) }

// Source returns a Source that attaches a new consumer to h each time it is
// materialized. A consumer that attaches after h has shut down completes
// immediately.
func (h *BroadcastHub[T]) Source() streams.Source[T] { return streams.NewSource(h.subscribe) }

// Done returns a channel that is closed when h shuts down.
func (h *BroadcastHub[T]) Done() <-chan struct{} { return h.ctx.Done() }

// Shutdown stops h. Queued elements are discarded, the upstream fails with
// ErrHubClosed, and every consumer completes. Shutdown is idempotent.
func (h *BroadcastHub[T]) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, c := range h.consumers {
		c.buf = queue.New()
	}
	h.sig.notify()
	h.cancel()
	h.log("BroadcastHub shut down with %d consumers attached", len(h.consumers))
}

// ConsumerStats describes one consumer attached to a BroadcastHub.
type ConsumerStats struct {
	ID        uuid.UUID
	Queued    int   // elements waiting in the queue of the consumer
	Delivered int64 // elements delivered to the consumer
	Dropped   int64 // elements discarded by the overflow policy
}

// Consumers reports the consumers currently attached to h, ordered by ID.
func (h *BroadcastHub[T]) Consumers() []ConsumerStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ConsumerStats, 0, len(h.consumers))
	for _, c := range h.consumers {
		out = append(out, ConsumerStats{
			ID:        c.id,
			Queued:    c.buf.Length(),
			Delivered: c.stats.Counter("delivered"),
			Dropped:   c.stats.Counter("dropped"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Stats reports a snapshot of the hub-wide metrics for h.
func (h *BroadcastHub[T]) Stats() metrics.Snapshot { return h.stats.Snapshot() }

func (h *BroadcastHub[T]) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// stopped reports err, or nil if err is due to h shutting down.
func (h *BroadcastHub[T]) stopped(ctx context.Context, err error) error {
	if ctx.Err() == nil && h.isClosed() {
		return nil
	}
	return err
}

// awaitLocked waits for a change of state. The caller must hold h.mu, which
// is released while waiting and reacquired before returning.
func (h *BroadcastHub[T]) awaitLocked(ctx context.Context, cancelled <-chan struct{}) error {
	changed := h.sig.changed()
	h.mu.Unlock()
	defer h.mu.Lock()
	select {
	case <-changed:
		return nil
	case <-cancelled:
		return streams.ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish is the body of the upstream attached via Sink.
func (h *BroadcastHub[T]) publish(ctx context.Context, in *streams.Inlet[T]) error {
	h.mu.Lock()
	if h.upstream {
		h.mu.Unlock()
		return ErrAlreadyAttached
	}
	h.upstream = true

	lctx, stop := linked(ctx, h.ctx)
	defer stop()

	// Hold the upstream until enough consumers have attached.
	for !h.closed && h.seen < h.startAfter {
		if err := h.awaitLocked(lctx, nil); err != nil {
			h.mu.Unlock()
			return h.upstreamStopped(ctx, err)
		}
	}
	h.mu.Unlock()

	for {
		v, err := in.Next(lctx)
		if err != nil {
			if h.isClosed() {
				return ErrHubClosed
			} else if ctx.Err() != nil {
				return ctx.Err()
			}
			h.finish(err)
			return nil
		}
		if err := h.broadcast(lctx, v); err != nil {
			return h.upstreamStopped(ctx, err)
		}
	}
}

func (h *BroadcastHub[T]) upstreamStopped(ctx context.Context, err error) error {
	if ctx.Err() == nil && h.isClosed() {
		return ErrHubClosed
	}
	return err
}

// finish records the termination of the upstream.
func (h *BroadcastHub[T]) finish(err error) {
	if errors.Is(err, io.EOF) {
		err = nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done, h.err = true, err
	h.sig.notify()
	h.log("BroadcastHub upstream ended: %v", err)
}

// broadcast adds v to the queue of every attached consumer according to the
// overflow policy.
func (h *BroadcastHub[T]) broadcast(ctx context.Context, v T) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.overflow == Backpressure {
		for !h.closed && !h.haveRoom() {
			if err := h.awaitLocked(ctx, nil); err != nil {
				return err
			}
		}
	}
	if h.closed {
		return ErrHubClosed
	}

	if len(h.consumers) == 0 {
		h.stats.Count("elements.discarded", 1)
	}
	for _, c := range h.consumers {
		if c.buf.Length() >= h.size {
			c.stats.Count("dropped", 1)
			if h.overflow == DropNewest {
				continue
			}
			c.buf.Remove() // DropOldest
		}
		c.buf.Add(v)
	}
	if h.replaySize > 0 {
		if h.replay.Length() >= h.replaySize {
			h.replay.Remove()
		}
		h.replay.Add(v)
	}
	h.stats.Count("elements.published", 1)
	h.sig.notify()
	return nil
}

// haveRoom reports whether every consumer has room for another element.
// The caller must hold h.mu.
func (h *BroadcastHub[T]) haveRoom() bool {
	for _, c := range h.consumers {
		if c.buf.Length() >= h.size {
			return false
		}
	}
	return true
}

// subscribe is the body of one consumer attached via Source.
func (h *BroadcastHub[T]) subscribe(ctx context.Context, out *streams.Outlet[T]) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	c := &consumer{id: uuid.New(), buf: queue.New(), stats: metrics.New()}
	for i := 0; i < h.replay.Length(); i++ {
		c.buf.Add(h.replay.Get(i))
	}
	h.consumers[c.id] = c
	h.seen++
	h.stats.Add("consumers.active", 1)
	h.sig.notify()
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.consumers, c.id)
		h.stats.Add("consumers.active", -1)
		h.sig.notify() // release a backpressured upstream
	}()

	lctx, stop := linked(ctx, h.ctx)
	defer stop()
	h.mu.Lock()
	for {
		if c.buf.Length() != 0 {
			v := c.buf.Remove().(T)
			h.sig.notify()
			h.mu.Unlock()
			if err := out.Send(lctx, v); err != nil {
				return h.stopped(ctx, err)
			}
			c.stats.Count("delivered", 1)
			h.mu.Lock()
			continue
		} else if h.closed {
			h.mu.Unlock()
			return nil
		} else if h.done {
			err := h.err
			h.mu.Unlock()
			return err
		}
		if err := h.awaitLocked(lctx, out.Cancelled()); err != nil {
			h.mu.Unlock()
			return h.stopped(ctx, err)
		}
	}
}
