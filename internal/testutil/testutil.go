// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package testutil defines internal support code for writing tests.
package testutil

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/creachadair/streams"
)

// Timeout bounds how long the helpers in this package wait for a result.
const Timeout = 10 * time.Second

// Collect materializes src into a slice, and fails t if src fails.
func Collect[T any](t testing.TB, src streams.Source[T]) []T {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	got, err := streams.ToSlice(ctx, src, nil)
	if err != nil {
		t.Fatalf("Collect: unexpected error: %v", err)
	}
	return got
}

// Await waits for f to resolve and reports its result. If f does not resolve
// within Timeout, Await fails t.
func Await[T any](t testing.TB, f *streams.Future[T]) (T, error) {
	t.Helper()

	select {
	case <-f.Done():
		return f.Get()
	case <-time.After(Timeout):
		t.Fatalf("Future did not resolve within %v", Timeout)
	}
	panic("unreachable")
}

// MustAwait calls Await and fails t if the future reports an error.
func MustAwait[T any](t testing.TB, f *streams.Future[T]) T {
	t.Helper()

	v, err := Await(t, f)
	if err != nil {
		t.Fatalf("Future failed: %v", err)
	}
	return v
}

// MustListen returns a TCP listener on an ephemeral loopback port. The
// listener is closed when t ends.
func MustListen(t testing.TB) net.Listener {
	t.Helper()

	lst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { lst.Close() })
	return lst
}
