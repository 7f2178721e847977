// Package framing splits byte streams into records separated by a delimiter,
// and joins records back into delimited byte streams.
//
// A frame is the data between two delimiters, not including the delimiter
// itself. Every frame is bounded by a maximum length: input that can no
// longer end in a frame of at most the maximum length fails the stream with
// a *SizeError. The data are never silently truncated.
package framing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/code"
)

// A SizeError reports a frame that exceeds the maximum length.
type SizeError struct {
	Max     int // the configured maximum frame length
	Pending int // the number of bytes pending without a delimiter
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("frame exceeds maximum length %d (%d bytes pending without delimiter)", e.Max, e.Pending)
}

// ErrCode satisfies code.ErrCoder, reporting code.FramingSizeExceeded.
func (e *SizeError) ErrCode() code.Code { return code.FramingSizeExceeded }

// A Splitter incrementally extracts frames from a sequence of chunks.
// A Splitter is not safe for concurrent use.
type Splitter struct {
	delim []byte
	max   int
	rest  []byte // bytes received since the last delimiter
	err   error  // sticky error
}

// NewSplitter constructs a Splitter for frames separated by delim and no
// longer than max bytes. It panics if delim is empty or max < 1.
func NewSplitter(delim []byte, max int) *Splitter {
	if len(delim) == 0 {
		panic("framing: empty delimiter")
	} else if max < 1 {
		panic("framing: maximum frame length must be positive")
	}
	return &Splitter{delim: bytes.Clone(delim), max: max}
}

// Pending reports the number of bytes held since the last delimiter.
func (s *Splitter) Pending() int { return len(s.rest) }

// Split adds chunk to the input and returns the frames it completes, in
// order. If the pending input can no longer end in a frame of at most the
// maximum length, Split returns the frames completed before the overlong
// one together with a *SizeError. Once Split has failed, it fails on every
// subsequent call.
func (s *Splitter) Split(chunk []byte) ([][]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.rest = append(s.rest, chunk...)

	var frames [][]byte
	for {
		i := bytes.Index(s.rest, s.delim)
		if i < 0 {
			break
		} else if i > s.max {
			return frames, s.fail(i)
		}
		frames = append(frames, bytes.Clone(s.rest[:i]))
		s.rest = s.rest[i+len(s.delim):]
	}
	if !s.canEnd() {
		return frames, s.fail(len(s.rest))
	}

	// Release the consumed prefix so the buffer does not grow without bound.
	s.rest = append([]byte(nil), s.rest...)
	return frames, nil
}

// canEnd reports whether the pending data, which contain no complete
// delimiter, could still be terminated by a delimiter at an offset no
// greater than the maximum frame length.
func (s *Splitter) canEnd() bool {
	if len(s.rest) <= s.max {
		return true
	}
	// The delimiter would have to begin within the last len(delim)-1 bytes,
	// and those bytes must be a prefix of it.
	for p := max(0, len(s.rest)-len(s.delim)+1); p <= s.max; p++ {
		if bytes.HasPrefix(s.delim, s.rest[p:]) {
			return true
		}
	}
	return false
}

func (s *Splitter) fail(pending int) error {
	s.err = &SizeError{Max: s.max, Pending: pending}
	s.rest = nil
	return s.err
}

// Flush handles the end of the input. If no data are pending, Flush returns
// nil, nil. Otherwise, if allowTruncation is true the pending data are
// returned as a final frame; if not, Flush reports an error with code
// FramingTruncated.
func (s *Splitter) Flush(allowTruncation bool) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	last := s.rest
	s.rest = nil
	if len(last) == 0 {
		return nil, nil
	} else if !allowTruncation {
		return nil, streams.Errorf(code.FramingTruncated, "input ended with %d bytes of unterminated frame", len(last))
	} else if len(last) > s.max {
		return nil, &SizeError{Max: s.max, Pending: len(last)}
	}
	return last, nil
}

// Delimiter returns a Flow that splits its input into frames separated by
// delim and no longer than max bytes. Each materialization of the flow uses
// its own Splitter.
//
// When the input completes with an unterminated frame pending, the frame is
// emitted if allowTruncation is true; otherwise the flow fails with code
// FramingTruncated.
func Delimiter(delim []byte, max int, allowTruncation bool) streams.Flow[[]byte, []byte] {
	delim = bytes.Clone(delim)
	NewSplitter(delim, max) // check arguments eagerly

	return streams.NewFlow(func(ctx context.Context, in *streams.Inlet[[]byte], out *streams.Outlet[[]byte]) error {
		s := NewSplitter(delim, max)
		for {
			chunk, err := in.Next(ctx)
			if errors.Is(err, io.EOF) {
				last, err := s.Flush(allowTruncation)
				if err != nil || last == nil {
					return err
				}
				return out.Send(ctx, last)
			} else if err != nil {
				return err
			}

			frames, serr := s.Split(chunk)
			for _, f := range frames {
				if err := out.Send(ctx, f); err != nil {
					return err
				}
			}
			if serr != nil {
				return serr
			}
		}
	})
}

// Terminator returns a Flow that appends delim to each record, the inverse
// of Delimiter.
func Terminator(delim []byte) streams.Flow[[]byte, []byte] {
	delim = bytes.Clone(delim)
	return streams.Map(func(rec []byte) []byte {
		buf := make([]byte, 0, len(rec)+len(delim))
		return append(append(buf, rec...), delim...)
	})
}
