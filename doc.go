/*
Package streams implements a small reactive-streams runtime: typed stream
stages connected by ports that carry elements downstream and demand upstream,
so that a fast producer can never overrun a slow consumer.

# Blueprints and Materialization

A stream graph is described by blueprints: a Source[T] produces values, a
Sink[T] consumes them, and a Flow[In, Out] transforms them. Blueprints are
immutable values that hold no running state. Materializing a blueprint (for
example with Connect) starts its stages on goroutines, connects them with
fresh ports, and returns a *Future that resolves when the graph has finished:

	f := streams.Connect(ctx,
		streams.Via(streams.FromSlice(1, 2, 3), streams.Map(double)),
		streams.ForEach(print),
		nil)
	if _, err := f.Get(); err != nil {
		log.Fatalf("Graph failed: %v", err)
	}

The same blueprint may be materialized any number of times, and each
materialization is independent of the others.

# Demand

Each port connects one producer (an *Outlet) with one consumer (an *Inlet).
The consumer grants demand with Request, or implicitly by calling Next, and
the producer may emit at most as many elements as it has been granted. Send
suspends the producer until demand is available. A producer that emits
without demand using TrySend fails the port with code DemandViolation.

A port ends with exactly one terminal signal: completion, failure with an
error, or cancellation by the consumer. Cancellation travels upstream, so a
sink that stops early releases the stages feeding it.

# Duplex Flows

A Duplex combines an independently built Sink and Source into a single
bidirectional handler, for example to serve one network connection. The two
directions of a Duplex have independent lifecycles: completing or cancelling
one does not terminate the other. This is the basis for half-closed
connections; see package server.

Other packages build on these primitives. Package hub provides fan-in and
fan-out hubs, package framing splits byte streams into delimited frames, and
package dispatch runs blocking work on isolated worker pools.
*/
package streams
