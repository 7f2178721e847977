// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package testutil_test

import (
	"errors"
	"testing"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/internal/testutil"
	"github.com/google/go-cmp/cmp"
)

func TestCollect(t *testing.T) {
	got := testutil.Collect(t, streams.FromSlice("a", "b", "c"))
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("Collect (-want, +got):\n%s", diff)
	}
}

func TestAwait(t *testing.T) {
	t.Run("Value", func(t *testing.T) {
		if got := testutil.MustAwait(t, streams.Resolved(25, nil)); got != 25 {
			t.Errorf("MustAwait: got %d, want 25", got)
		}
	})
	t.Run("Error", func(t *testing.T) {
		bad := errors.New("bad")
		if _, err := testutil.Await(t, streams.Resolved(0, bad)); err != bad {
			t.Errorf("Await: got %v, want %v", err, bad)
		}
	})
}

func TestMustListen(t *testing.T) {
	lst := testutil.MustListen(t)
	t.Logf("Listening at %v", lst.Addr())
}
