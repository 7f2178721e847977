package dispatch

import (
	"context"
	"fmt"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/code"
)

// An OperationError reports the failure of an isolated operation.
type OperationError struct {
	Pool string // the pool that ran the operation
	Err  error  // the error reported by the operation
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation on pool %q failed: %v", e.Pool, e.Err)
}

// ErrCode satisfies code.ErrCoder, reporting code.OperationFailure.
func (e *OperationError) ErrCode() code.Code { return code.OperationFailure }

// Unwrap returns the error reported by the operation.
func (e *OperationError) Unwrap() error { return e.Err }

// RunIsolated schedules op to run on pool and returns at once with a future
// for its result. The caller is never blocked, regardless of how long op
// runs; op is responsible for its own timeouts.
//
// If op reports an error or panics, the future fails with an
// *OperationError. If pool is nil or is the primary pool of its registry,
// the future fails with code ConfigurationError and op is not run, since
// blocking work must not occupy the primary pool. If pool has closed, the
// future fails with ErrPoolClosed.
func RunIsolated[T any](pool *Pool, op func(context.Context) (T, error)) *streams.Future[T] {
	var zero T
	if pool == nil {
		return streams.Resolved(zero, streams.Errorf(code.ConfigurationError, "no worker pool for isolated operation"))
	} else if pool.primary {
		return streams.Resolved(zero, streams.Errorf(code.ConfigurationError,
			"isolated operation may not run on the primary pool %q", pool.name))
	}

	f, resolve := streams.NewFuture[T]()
	err := pool.submit(func(ctx context.Context) {
		v, err := runOp(ctx, op)
		if err != nil {
			pool.stats.Count("tasks.failed", 1)
			pool.log("Isolated operation on %q failed: %v", pool.name, err)
			resolve(zero, &OperationError{Pool: pool.name, Err: err})
			return
		}
		resolve(v, nil)
	}, func(err error) { resolve(zero, err) })
	if err != nil {
		resolve(zero, err)
	}
	return f
}

// runOp calls op, converting a panic into an error.
func runOp[T any](ctx context.Context, op func(context.Context) (T, error)) (_ T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("operation panicked: %v", p)
		}
	}()
	return op(ctx)
}
