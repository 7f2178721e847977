package channel

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/creachadair/streams/framing"
)

// DefaultMaxRecord is the maximum record length used by Line.
const DefaultMaxRecord = 1 << 16

// Line is a Framing in which each record is terminated by a Unicode LF (10),
// and records are at most DefaultMaxRecord bytes long.
func Line(r io.Reader, wc io.WriteCloser) Channel {
	return Delimited([]byte("\n"), DefaultMaxRecord)(r, wc)
}

// Delimited returns a Framing in which each record is terminated by delim and
// is at most max bytes long, not counting the delimiter. Records are split
// on receipt exactly as by framing.Delimiter. Send reports an error for a
// record that contains delim or is longer than max.
//
// At the end of the input, Recv reports io.ErrUnexpectedEOF if an
// unterminated record is pending.
func Delimited(delim []byte, max int) Framing {
	delim = bytes.Clone(delim)
	return func(r io.Reader, wc io.WriteCloser) Channel {
		return &delimited{
			delim: delim,
			max:   max,
			r:     r,
			wc:    wc,
			split: framing.NewSplitter(delim, max),
			buf:   make([]byte, 4096),
		}
	}
}

// delimited implements Channel. Records sent on a delimited channel are
// framed by a trailing delimiter.
type delimited struct {
	delim []byte
	max   int
	r     io.Reader
	wc    io.WriteCloser
	split *framing.Splitter
	buf   []byte
	ready [][]byte // records split but not yet returned
	err   error    // sticky read error
}

// Send implements part of Channel.
func (c *delimited) Send(msg []byte) error {
	if len(msg) > c.max {
		return &framing.SizeError{Max: c.max, Pending: len(msg)}
	} else if bytes.Contains(msg, c.delim) {
		return fmt.Errorf("record contains delimiter %q", c.delim)
	}
	out := make([]byte, 0, len(msg)+len(c.delim))
	_, err := c.wc.Write(append(append(out, msg...), c.delim...))
	return err
}

// Recv implements part of Channel.
func (c *delimited) Recv() ([]byte, error) {
	for len(c.ready) == 0 {
		if c.err != nil {
			return nil, c.err
		}
		n, err := c.r.Read(c.buf)
		if n > 0 {
			recs, serr := c.split.Split(c.buf[:n])
			c.ready = append(c.ready, recs...)
			if serr != nil {
				c.err = serr
			}
		}
		if err != nil && c.err == nil {
			if errors.Is(err, io.EOF) && c.split.Pending() != 0 {
				err = io.ErrUnexpectedEOF
			}
			c.err = err
		}
	}
	next := c.ready[0]
	c.ready = c.ready[1:]
	return next, nil
}

// Close implements part of Channel.
func (c *delimited) Close() error { return c.wc.Close() }
