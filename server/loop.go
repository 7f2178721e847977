package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/code"
)

// Bind returns a Source of the connections accepted from lst. The source is
// infinite: it ends only when it is cancelled, when its context ends, or
// when lst fails. A connection is accepted only when the consumer has
// requested one, so a slow consumer delays accepting rather than queueing
// connections.
//
// The source owns lst, and closes it when the source ends; for this reason
// the source should be materialized only once. Closing lst from elsewhere
// completes the source.
func Bind(lst net.Listener, opts *Options) streams.Source[*IncomingConnection] {
	logf := opts.logFunc()
	return streams.NewSource(func(ctx context.Context, out *streams.Outlet[*IncomingConnection]) error {
		var stopping atomic.Bool
		unbind := func() {
			if stopping.CompareAndSwap(false, true) {
				lst.Close()
			}
		}
		defer unbind()
		stop := context.AfterFunc(ctx, unbind)
		defer stop()
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-out.Cancelled():
				unbind()
			case <-done:
			}
		}()

		logf("Listening at %v", lst.Addr())
		for {
			if _, err := out.AwaitDemand(ctx); err != nil {
				return err
			}
			conn, err := lst.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				} else if stopping.Load() {
					return streams.ErrCancelled
				} else if errors.Is(err, net.ErrClosed) {
					logf("Listener at %v closed", lst.Addr())
					return nil
				}
				return streams.Errorf(code.TransportError, "accept: %w", err)
			}
			ic := newIncoming(conn, opts)
			if err := out.Send(ctx, ic); err != nil {
				conn.Close()
				return err
			}
		}
	})
}

// Loop accepts connections from lst and serves each with flow, until ctx
// ends or lst is closed. Loop waits for the connections it started to finish
// before returning. It reports nil if lst was closed, or the error that
// stopped the loop otherwise.
func Loop(ctx context.Context, lst net.Listener, flow streams.Flow[[]byte, []byte], opts *Options) error {
	logf := opts.logFunc()
	var wg sync.WaitGroup
	defer wg.Wait()

	_, err := streams.Connect(ctx, Bind(lst, opts), streams.ForEach(func(c *IncomingConnection) error {
		f := c.HandleWith(ctx, flow)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Get(); err != nil && ctx.Err() == nil {
				logf("Connection %v failed: %v", c.ID, err)
			}
		}()
		return nil
	}), opts.streamOptions()).Get()
	return err
}
