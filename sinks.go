package streams

import (
	"context"
	"errors"
	"io"
)

// Cancelled returns a Sink that cancels its input immediately, accepting no
// elements. Combined with a Source in a Duplex, it closes the read direction
// while leaving the write direction open.
func Cancelled[T any]() Sink[T] {
	return NewSink(func(context.Context, *Inlet[T]) error { return nil })
}

// Ignore returns a Sink that consumes and discards all its input.
func Ignore[T any]() Sink[T] {
	return ForEach(func(T) error { return nil })
}

// ForEach returns a Sink that calls fn for each element in order. If fn
// reports an error, the sink fails with that error and cancels its input.
func ForEach[T any](fn func(T) error) Sink[T] {
	return NewSink(func(ctx context.Context, in *Inlet[T]) error {
		for {
			v, err := in.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return err
			}
			if err := fn(v); err != nil {
				return err
			}
		}
	})
}

// ToChan returns a Sink that sends each element to ch. The sink does not
// close ch when its input completes.
func ToChan[T any](ch chan<- T) Sink[T] {
	return NewSink(func(ctx context.Context, in *Inlet[T]) error {
		for {
			v, err := in.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return err
			}
			select {
			case ch <- v:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// ToSlice materializes src and collects everything it emits. It blocks until
// src terminates, and reports the elements received along with the error
// that terminated src, if any.
func ToSlice[T any](ctx context.Context, src Source[T], opts *Options) ([]T, error) {
	var all []T
	_, err := Connect(ctx, src, ForEach(func(v T) error {
		all = append(all, v)
		return nil
	}), opts).Get()
	return all, err
}
