package server

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/code"
	"github.com/google/uuid"
)

// An IncomingConnection is a connection accepted from a bound listener that
// has not yet been served.
type IncomingConnection struct {
	// ID uniquely identifies the connection, for logs.
	ID uuid.UUID

	conn    net.Conn
	opts    *Options
	handled atomic.Bool
}

func newIncoming(conn net.Conn, opts *Options) *IncomingConnection {
	return &IncomingConnection{ID: uuid.New(), conn: conn, opts: opts}
}

// LocalAddr reports the local address of the connection.
func (c *IncomingConnection) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr reports the address of the peer.
func (c *IncomingConnection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes the connection without serving it.
func (c *IncomingConnection) Close() error { return c.conn.Close() }

// A halfCloser is a connection whose directions can be closed separately,
// such as a *net.TCPConn or a *net.UnixConn.
type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// HandleWith serves the connection with flow: chunks of bytes read from the
// peer are the input of flow, and the output of flow is written to the peer.
// It returns at once with a future that resolves when both directions have
// ended and the connection is closed.
//
// If the options of the listener enable HalfClose and the connection cannot
// close one direction alone, the connection is closed and the future fails
// with code TransportError before any data flow. A connection can be served
// only once; later calls fail with code Closed.
func (c *IncomingConnection) HandleWith(ctx context.Context, flow streams.Flow[[]byte, []byte]) *streams.Future[streams.Done] {
	if !c.handled.CompareAndSwap(false, true) {
		return streams.Resolved(streams.Done{}, streams.Errorf(code.Closed, "connection %v is already handled", c.ID))
	}
	logf := c.opts.logFunc()

	st := &connState{conn: c.conn}
	if c.opts.halfClose() {
		hc, ok := c.conn.(halfCloser)
		if !ok {
			c.conn.Close()
			logf("Connection %v: half-close is not supported by %T", c.ID, c.conn)
			return streams.Resolved(streams.Done{}, streams.Errorf(code.TransportError,
				"half-close is not supported by transport %T", c.conn))
		}
		st.hc = hc
	}
	st.dead, st.kill = context.WithCancel(context.Background())

	logf("Connection %v from %v: serving", c.ID, c.RemoteAddr())
	g := streams.Connect(ctx,
		streams.Via(st.reader(c.opts.readSize(), c.opts.idleTimeout()), flow),
		st.writer(), c.opts.streamOptions())

	f, resolve := streams.NewFuture[streams.Done]()
	go func() {
		v, err := g.Get()
		st.closeAll()
		logf("Connection %v closed: %v", c.ID, err)
		resolve(v, err)
	}()
	return f
}

// connState tracks which directions of a connection have been shut down.
type connState struct {
	conn net.Conn
	hc   halfCloser // nil unless half-close is enabled

	dead context.Context // ends when the connection is closed entirely
	kill context.CancelFunc

	mu        sync.Mutex
	readDone  bool
	writeDone bool
}

// closeRead shuts down the read direction. Without half-close, or if the
// write direction is already shut down, the connection is closed.
func (s *connState) closeRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readDone {
		return
	}
	s.readDone = true
	s.conn.SetReadDeadline(time.Now()) // release a pending Read
	if s.hc == nil || s.writeDone {
		s.closeLocked()
	} else {
		s.hc.CloseRead()
	}
}

// closeWrite shuts down the write direction, which the peer observes as the
// end of its input. Without half-close, or if the read direction is already
// shut down, the connection is closed.
func (s *connState) closeWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeDone {
		return
	}
	s.writeDone = true
	if s.hc == nil || s.readDone {
		s.closeLocked()
	} else {
		s.hc.CloseWrite()
	}
}

// closeAll closes the connection in both directions.
func (s *connState) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *connState) closeLocked() {
	if s.dead.Err() == nil {
		s.readDone, s.writeDone = true, true
		s.conn.Close()
		s.kill()
	}
}

func (s *connState) isReadDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDone
}

func (s *connState) isWriteDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeDone
}

// reader returns a Source of the chunks read from the connection.
func (s *connState) reader(size int, idle time.Duration) streams.Source[[]byte] {
	return streams.NewSource(func(ctx context.Context, out *streams.Outlet[[]byte]) error {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-out.Cancelled():
				s.closeRead()
			case <-ctx.Done():
				s.closeAll()
			case <-done:
			}
		}()
		defer s.closeRead()

		buf := make([]byte, size)
		for {
			if idle > 0 {
				s.conn.SetReadDeadline(time.Now().Add(idle))
			}
			n, err := s.conn.Read(buf)
			if n > 0 {
				if err := out.Send(ctx, append([]byte(nil), buf[:n]...)); err != nil {
					return err
				}
			}
			switch {
			case err == nil:
				continue
			case errors.Is(err, io.EOF):
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			case s.isReadDone():
				return nil // closed deliberately
			case errors.Is(err, os.ErrDeadlineExceeded):
				return streams.Errorf(code.TransportError, "connection idle for %v", idle)
			default:
				return streams.Errorf(code.TransportError, "read: %w", err)
			}
		}
	})
}

// writer returns a Sink that writes its input to the connection.
func (s *connState) writer() streams.Sink[[]byte] {
	return streams.NewSink(func(ctx context.Context, in *streams.Inlet[[]byte]) error {
		wctx, stop := context.WithCancel(ctx)
		defer stop()
		defer context.AfterFunc(s.dead, stop)()
		stopWatch := context.AfterFunc(ctx, s.closeAll)
		defer stopWatch()

		for {
			chunk, err := in.Next(wctx)
			if errors.Is(err, io.EOF) {
				s.closeWrite()
				return nil
			} else if ctx.Err() != nil {
				return ctx.Err()
			} else if s.dead.Err() != nil {
				return nil // closed by the read side
			} else if err != nil {
				s.closeAll() // the flow failed; abandon the connection
				return err
			}

			if _, err := s.conn.Write(chunk); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				} else if s.isWriteDone() {
					return nil
				}
				s.closeAll()
				return streams.Errorf(code.TransportError, "write: %w", err)
			}
		}
	})
}
