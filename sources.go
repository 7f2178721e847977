package streams

import (
	"context"
	"time"
)

// FromSlice returns a Source that emits vs in order and then completes.
func FromSlice[T any](vs ...T) Source[T] {
	return NewSource(func(ctx context.Context, out *Outlet[T]) error {
		for _, v := range vs {
			if err := out.Send(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Single returns a Source that emits v and then completes.
func Single[T any](v T) Source[T] { return FromSlice(v) }

// Empty returns a Source that completes without emitting anything.
func Empty[T any]() Source[T] {
	return NewSource(func(context.Context, *Outlet[T]) error { return nil })
}

// Failed returns a Source that fails with err without emitting anything.
func Failed[T any](err error) Source[T] {
	return NewSource(func(context.Context, *Outlet[T]) error { return err })
}

// FromChan returns a Source that emits the values received from ch, and
// completes when ch is closed. Several materializations of the same Source
// compete for the values of ch.
func FromChan[T any](ch <-chan T) Source[T] {
	return NewSource(func(ctx context.Context, out *Outlet[T]) error {
		for {
			select {
			case v, ok := <-ch:
				if !ok {
					return nil
				} else if err := out.Send(ctx, v); err != nil {
					return err
				}
			case <-out.Cancelled():
				return ErrCancelled
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// Tick returns a Source that emits v after initial, and then every interval,
// until it is cancelled. It never completes on its own. A tick that occurs
// while the consumer has no outstanding demand is dropped rather than
// buffered, so a slow consumer sees fewer ticks, never a burst of stale ones.
func Tick[T any](initial, interval time.Duration, v T) Source[T] {
	return NewSource(func(ctx context.Context, out *Outlet[T]) error {
		t := time.NewTimer(initial)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				t.Reset(interval)
				if out.Demand() == 0 {
					continue // no demand; drop this tick
				}
				if err := out.TrySend(v); err != nil {
					return err
				}
			case <-out.Cancelled():
				return ErrCancelled
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
