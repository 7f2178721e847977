// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

// Package channel carries delimited records over byte streams, for programs
// that talk to the servers in this module one record at a time.
package channel

import "io"

// A Channel represents the ability to transmit and receive data records. A
// channel does not interpret the contents of a record, but may add and remove
// framing so that records can be embedded in a byte stream. The methods of a
// Channel need not be safe for concurrent use.
type Channel interface {
	// Send transmits a record on the channel.
	Send([]byte) error

	// Recv returns the next available record from the channel. If no further
	// records are available, it returns io.EOF.
	Recv() ([]byte, error)

	// Close shuts down the channel, after which no further records may be
	// sent.
	Close() error
}

// A Framing converts a reader and a writer into a Channel with a particular
// record-framing discipline.
type Framing func(io.Reader, io.WriteCloser) Channel

// Pipe creates a pair of connected in-memory channels using the specified
// framing discipline. Sends to client will be received by server, and vice
// versa. Pipe will panic if framing == nil.
func Pipe(framing Framing) (client, server Channel) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	client = framing(cr, cw)
	server = framing(sr, sw)
	return
}
