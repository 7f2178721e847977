package channel

import (
	"context"
	"errors"
	"io"

	"github.com/creachadair/streams"
)

// Source returns a Source that emits the records received on ch, and
// completes when ch reports io.EOF. A Channel is not safe for concurrent
// receives, so the Source should be materialized only once.
//
// Recv does not observe contexts; a Source blocked in Recv stops only when
// ch yields a record or an error. Closing the underlying reader releases it.
func Source(ch Channel) streams.Source[[]byte] {
	return streams.NewSource(func(ctx context.Context, out *streams.Outlet[[]byte]) error {
		for {
			rec, err := ch.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return err
			}
			if err := out.Send(ctx, rec); err != nil {
				return err
			}
		}
	})
}

// Sink returns a Sink that sends each record to ch, and closes ch when its
// input ends.
func Sink(ch Channel) streams.Sink[[]byte] {
	return streams.NewSink(func(ctx context.Context, in *streams.Inlet[[]byte]) error {
		defer ch.Close()
		for {
			rec, err := in.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return err
			}
			if err := ch.Send(rec); err != nil {
				return err
			}
		}
	})
}
