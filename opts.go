package streams

import (
	"context"
	"fmt"
	"log"
)

// DefaultWindow is the demand window used when Options.Window is unset.
const DefaultWindow = 16

// Options control the materialization of a stream graph.
// A nil *Options provides sensible defaults.
type Options struct {
	// The number of elements a consumer keeps requested ahead of its own
	// consumption. A value less than 1 uses DefaultWindow.
	Window int

	// If not nil, send debug logs here.
	Logger *log.Logger
}

func (o *Options) window() int {
	if o == nil || o.Window < 1 {
		return DefaultWindow
	}
	return o.Window
}

func (o *Options) logFunc() func(string, ...any) {
	if o == nil || o.Logger == nil {
		return func(string, ...any) {}
	}
	return func(msg string, args ...any) { o.Logger.Output(2, fmt.Sprintf(msg, args...)) }
}

type optionsKey struct{}

// withOptions attaches opts to ctx so that stages materialized under ctx
// create their internal ports with the same settings.
func withOptions(ctx context.Context, opts *Options) context.Context {
	if opts == nil {
		return ctx
	}
	return context.WithValue(ctx, optionsKey{}, opts)
}

// optionsFrom returns the options attached to ctx, or nil.
func optionsFrom(ctx context.Context) *Options {
	if v := ctx.Value(optionsKey{}); v != nil {
		return v.(*Options)
	}
	return nil
}

// pipeFor creates a port with the window configured for ctx.
func pipeFor[T any](ctx context.Context) (*Outlet[T], *Inlet[T]) {
	return Pipe[T](optionsFrom(ctx).window())
}
