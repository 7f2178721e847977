// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package channel_test

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/channel"
	"github.com/creachadair/streams/code"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

// roundTrip sends msg on s and checks that r receives it intact.
func roundTrip(t *testing.T, s, r channel.Channel, msg string) {
	t.Helper()

	var g errgroup.Group
	var rec []byte
	g.Go(func() (err error) { rec, err = r.Recv(); return })
	g.Go(func() error { return s.Send([]byte(msg)) })
	if err := g.Wait(); err != nil {
		t.Fatalf("Round trip of %d bytes: unexpected error: %v", len(msg), err)
	}
	if diff := cmp.Diff(msg, string(rec)); diff != "" {
		t.Errorf("Received record (-want, +got):\n%s", diff)
	}
}

var records = []string{
	"",
	"a",
	"  spaced  out  ",
	"tab\tseparated\tfields",
	"unicode: \u00e9t\u00e9",
	strings.Repeat("0123456789abcdef", 4096), // spans many reads
}

func TestFramings(t *testing.T) {
	framings := map[string]channel.Framing{
		"Line": channel.Line,
		"CRLF": channel.Delimited([]byte("\r\n"), 1<<20),
		"RS":   channel.Delimited([]byte{'\x1e'}, 1<<20),
	}
	for name, framing := range framings {
		t.Run(name, func(t *testing.T) {
			a, b := channel.Pipe(framing)
			defer a.Close()
			defer b.Close()

			for i, rec := range records {
				t.Run(strconv.Itoa(i), func(t *testing.T) {
					roundTrip(t, a, b, rec)
					roundTrip(t, b, a, rec)
				})
			}
		})
	}
}

func TestDelimitedErrors(t *testing.T) {
	t.Run("SendDelimiter", func(t *testing.T) {
		ch := channel.Line(strings.NewReader(""), nopCloser{io.Discard})
		if err := ch.Send([]byte("two\nlines")); err == nil {
			t.Error("Send of a record containing the delimiter did not fail")
		}
	})
	t.Run("SendTooLong", func(t *testing.T) {
		ch := channel.Delimited([]byte("\n"), 4)(strings.NewReader(""), nopCloser{io.Discard})
		if err := ch.Send([]byte("12345")); code.FromError(err) != code.FramingSizeExceeded {
			t.Errorf("Send: got %v, want code %v", err, code.FramingSizeExceeded)
		}
	})
	t.Run("RecvTooLong", func(t *testing.T) {
		ch := channel.Delimited([]byte("\n"), 4)(strings.NewReader("ok\ntoolong\n"), nopCloser{io.Discard})
		if rec, err := ch.Recv(); err != nil || string(rec) != "ok" {
			t.Errorf("Recv: got (%q, %v), want (ok, nil)", rec, err)
		}
		if _, err := ch.Recv(); code.FromError(err) != code.FramingSizeExceeded {
			t.Errorf("Recv: got %v, want code %v", err, code.FramingSizeExceeded)
		}
	})
	t.Run("RecvTruncated", func(t *testing.T) {
		ch := channel.Line(strings.NewReader("ok\npartial"), nopCloser{io.Discard})
		if rec, err := ch.Recv(); err != nil || string(rec) != "ok" {
			t.Errorf("Recv: got (%q, %v), want (ok, nil)", rec, err)
		}
		if _, err := ch.Recv(); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("Recv: got %v, want %v", err, io.ErrUnexpectedEOF)
		}
	})
}

func TestStreams(t *testing.T) {
	lhs, rhs := channel.Pipe(channel.Line)
	want := []string{"one", "two", "three"}

	send := streams.Connect(context.Background(),
		streams.Via(streams.FromSlice(want...), streams.Map(func(s string) []byte { return []byte(s) })),
		channel.Sink(lhs), nil)
	got, err := streams.ToSlice(context.Background(),
		streams.Via(channel.Source(rhs), streams.Map(func(b []byte) string { return string(b) })), nil)
	if err != nil {
		t.Fatalf("Receive: unexpected error: %v", err)
	}
	if _, err := send.Get(); err != nil {
		t.Errorf("Send: unexpected error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Records (-want, +got):\n%s", diff)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
