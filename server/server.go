// Package server attaches stream flows to network connections.
//
// A listener is bound with Bind, which yields a lazy, infinite Source of
// incoming connections. Each connection is served by materializing a Flow
// of byte chunks against it with HandleWith: bytes read from the peer flow
// into the flow, and bytes the flow emits are written back to the peer.
// Loop combines the two for the common case of serving every connection
// with the same flow.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/creachadair/streams"
)

// DefaultReadSize is the read chunk size used when Options.ReadSize is unset.
const DefaultReadSize = 4096

// Options control the behaviour of listeners and connections.
// A nil *Options provides sensible defaults.
type Options struct {
	// If true, the two directions of each connection are shut down
	// independently: when the flow stops reading, only the read side of the
	// connection is closed, and when the flow stops writing, only the write
	// side is. Connections whose transport cannot close one direction alone
	// are rejected with a TransportError.
	//
	// If false, the whole connection is closed as soon as either direction
	// ends.
	HalfClose bool

	// If positive, a connection that receives no data for this long fails
	// with a TransportError.
	IdleTimeout time.Duration

	// The size of the chunks read from a connection. A value less than 1
	// uses DefaultReadSize.
	ReadSize int

	// If true, Listen sets SO_REUSEADDR on the listening socket where the
	// platform supports it.
	ReuseAddr bool

	// If not nil, send debug logs here.
	Logger *log.Logger

	// Options for the streams materialized to serve connections.
	Stream *streams.Options
}

func (o *Options) halfClose() bool { return o != nil && o.HalfClose }

func (o *Options) idleTimeout() time.Duration {
	if o == nil || o.IdleTimeout <= 0 {
		return 0
	}
	return o.IdleTimeout
}

func (o *Options) readSize() int {
	if o == nil || o.ReadSize < 1 {
		return DefaultReadSize
	}
	return o.ReadSize
}

func (o *Options) reuseAddr() bool { return o != nil && o.ReuseAddr }

func (o *Options) streamOptions() *streams.Options {
	if o == nil {
		return nil
	}
	return o.Stream
}

func (o *Options) logFunc() func(string, ...any) {
	if o == nil || o.Logger == nil {
		return func(string, ...any) {}
	}
	return func(msg string, args ...any) { o.Logger.Output(2, fmt.Sprintf(msg, args...)) }
}

// Listen opens a TCP listener on addr. If opts.ReuseAddr is set, the
// listening socket is marked for address reuse.
func Listen(ctx context.Context, addr string, opts *Options) (net.Listener, error) {
	var lc net.ListenConfig
	if opts.reuseAddr() {
		lc.Control = reuseAddr
	}
	return lc.Listen(ctx, "tcp", addr)
}
