package streams

import (
	"context"
	"errors"
	"io"
)

// Map returns a Flow that applies fn to each element.
func Map[A, B any](fn func(A) B) Flow[A, B] {
	return NewFlow(func(ctx context.Context, in *Inlet[A], out *Outlet[B]) error {
		for {
			v, err := in.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return err
			}
			if err := out.Send(ctx, fn(v)); err != nil {
				return err
			}
		}
	})
}

// Take returns a Flow that forwards the first n elements and then completes,
// cancelling its input.
func Take[T any](n int) Flow[T, T] {
	return NewFlow(func(ctx context.Context, in *Inlet[T], out *Outlet[T]) error {
		for i := 0; i < n; i++ {
			v, err := in.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return err
			}
			if err := out.Send(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
}
