package hub

import (
	"log"

	"github.com/creachadair/streams"
	"gopkg.in/tomb.v2"
)

// BusOptions control the behaviour of a Bus.
// A nil *BusOptions provides sensible defaults.
type BusOptions struct {
	// The buffer size of the merge side and of each consumer queue.
	BufferSize int

	// The overflow policy for consumers; see BroadcastOptions.
	Overflow Overflow

	// The number of recent elements replayed to new consumers.
	Replay int

	// If not nil, send debug logs here.
	Logger *log.Logger
}

// A Bus connects a MergeHub to a BroadcastHub, so that every element sent
// by any attached producer is delivered to every attached consumer. This is
// the shape of a chat room: each participant attaches both a producer and a
// consumer.
type Bus[T any] struct {
	merge *MergeHub[T]
	bcast *BroadcastHub[T]
	t     tomb.Tomb
}

// NewBus constructs a Bus and starts the stream connecting its hubs. The
// caller must call Shutdown when the bus is no longer needed.
func NewBus[T any](opts *BusOptions) *Bus[T] {
	if opts == nil {
		opts = new(BusOptions)
	}
	b := &Bus[T]{
		merge: NewMergeHub[T](&MergeOptions{
			BufferSize: opts.BufferSize,
			Logger:     opts.Logger,
		}),
		bcast: NewBroadcastHub[T](&BroadcastOptions{
			BufferSize: opts.BufferSize,
			Overflow:   opts.Overflow,
			Replay:     opts.Replay,
			Logger:     opts.Logger,
		}),
	}
	b.t.Go(b.run)
	return b
}

func (b *Bus[T]) run() error {
	f := streams.Connect(b.t.Context(nil), b.merge.Source(), b.bcast.Sink(), nil)
	select {
	case <-b.t.Dying():
		b.merge.Shutdown()
		b.bcast.Shutdown()
		f.Get()
		return nil
	case <-f.Done():
		_, err := f.Get()
		return err
	}
}

// Sink returns a Sink that attaches a new producer to the bus each time it
// is materialized.
func (b *Bus[T]) Sink() streams.Sink[T] { return b.merge.Sink() }

// Source returns a Source that attaches a new consumer to the bus each time
// it is materialized.
func (b *Bus[T]) Source() streams.Source[T] { return b.bcast.Source() }

// Producers reports the number of producers attached to the bus.
func (b *Bus[T]) Producers() int { return b.merge.Producers() }

// Consumers reports the consumers attached to the bus.
func (b *Bus[T]) Consumers() []ConsumerStats { return b.bcast.Consumers() }

// Shutdown stops the bus. Producers fail with ErrHubClosed and consumers
// complete. Shutdown does not wait for the bus to stop; use Wait.
func (b *Bus[T]) Shutdown() { b.t.Kill(nil) }

// Wait blocks until the bus has stopped, and reports the error that stopped
// it, if any.
func (b *Bus[T]) Wait() error { return b.t.Wait() }
