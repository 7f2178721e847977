package framing_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/code"
	"github.com/creachadair/streams/framing"
	"github.com/google/go-cmp/cmp"
)

func strs(bs [][]byte) []string {
	var out []string
	for _, b := range bs {
		out = append(out, string(b))
	}
	return out
}

func TestSplitter(t *testing.T) {
	tests := []struct {
		name   string
		delim  string
		max    int
		chunks []string
		want   []string
		rest   int
	}{
		{"Lines", "\n", 1024, []string{"first\nsecond\nthird"}, []string{"first", "second"}, 5},
		{"Empty", "\n", 10, []string{""}, nil, 0},
		{"EmptyFrames", "\n", 10, []string{"\n\n"}, []string{"", ""}, 0},
		{"Chunked", "\n", 10, []string{"ab", "c\nd", "e\n"}, []string{"abc", "de"}, 0},
		{"ExactMax", "\n", 4, []string{"abcd\n"}, []string{"abcd"}, 0},
		{"MultiByte", "\r\n", 8, []string{"one\r", "\ntwo\r\nthree\r"}, []string{"one", "two"}, 6},
		{"SplitDelimiter", "::", 3, []string{"abc:", ":de"}, []string{"abc"}, 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := framing.NewSplitter([]byte(test.delim), test.max)
			var got [][]byte
			for _, c := range test.chunks {
				fs, err := s.Split([]byte(c))
				if err != nil {
					t.Fatalf("Split(%q): unexpected error: %v", c, err)
				}
				got = append(got, fs...)
			}
			if diff := cmp.Diff(test.want, strs(got)); diff != "" {
				t.Errorf("Frames (-want, +got):\n%s", diff)
			}
			if n := s.Pending(); n != test.rest {
				t.Errorf("Pending: got %d, want %d", n, test.rest)
			}
		})
	}
}

func TestSplitterOverflow(t *testing.T) {
	t.Run("NoDelimiter", func(t *testing.T) {
		s := framing.NewSplitter([]byte("\n"), 1024)
		if _, err := s.Split(bytes.Repeat([]byte("x"), 1024)); err != nil {
			t.Fatalf("Split of max bytes: unexpected error: %v", err)
		}
		_, err := s.Split(bytes.Repeat([]byte("x"), 2000-1024))
		var serr *framing.SizeError
		if !errors.As(err, &serr) {
			t.Fatalf("Split: got %v, want *SizeError", err)
		}
		if serr.Max != 1024 {
			t.Errorf("SizeError max: got %d, want 1024", serr.Max)
		}
		if c := code.FromError(err); c != code.FramingSizeExceeded {
			t.Errorf("Error code: got %v, want %v", c, code.FramingSizeExceeded)
		}

		// The failure is sticky.
		if _, err := s.Split([]byte("\n")); !errors.As(err, &serr) {
			t.Errorf("Split after failure: got %v, want *SizeError", err)
		}
	})
	t.Run("LateDelimiter", func(t *testing.T) {
		// A delimiter that arrives only after the maximum is still an error,
		// but frames completed before the overlong one are returned.
		s := framing.NewSplitter([]byte("\n"), 3)
		fs, err := s.Split([]byte("ok\ntoo long\n"))
		if c := code.FromError(err); c != code.FramingSizeExceeded {
			t.Errorf("Split: got %v, want code %v", err, code.FramingSizeExceeded)
		}
		if diff := cmp.Diff([]string{"ok"}, strs(fs)); diff != "" {
			t.Errorf("Frames (-want, +got):\n%s", diff)
		}
	})
	t.Run("PartialDelimiter", func(t *testing.T) {
		// "abc:" may still end as "abc" followed by "::".
		s := framing.NewSplitter([]byte("::"), 3)
		if _, err := s.Split([]byte("abc:")); err != nil {
			t.Errorf("Split: unexpected error: %v", err)
		}
		if _, err := s.Split([]byte("x")); err == nil {
			t.Error("Split: got nil error, want *SizeError")
		}
	})
}

func TestFlush(t *testing.T) {
	s := framing.NewSplitter([]byte("\n"), 10)
	s.Split([]byte("a\nbc"))
	if _, err := s.Flush(false); code.FromError(err) != code.FramingTruncated {
		t.Errorf("Flush(false): got %v, want code %v", err, code.FramingTruncated)
	}

	s = framing.NewSplitter([]byte("\n"), 10)
	s.Split([]byte("a\nbc"))
	if last, err := s.Flush(true); err != nil || string(last) != "bc" {
		t.Errorf("Flush(true): got (%q, %v), want (bc, nil)", last, err)
	}
	if last, err := s.Flush(false); err != nil || last != nil {
		t.Errorf("Flush with nothing pending: got (%q, %v), want (nil, nil)", last, err)
	}
}

func TestDelimiter(t *testing.T) {
	chunks := func(ss ...string) streams.Source[[]byte] {
		bs := make([][]byte, len(ss))
		for i, s := range ss {
			bs[i] = []byte(s)
		}
		return streams.FromSlice(bs...)
	}
	ctx := context.Background()

	t.Run("Truncate", func(t *testing.T) {
		flow := framing.Delimiter([]byte("\n"), 1024, true)
		got, err := streams.ToSlice(ctx, streams.Via(chunks("first\nsec", "ond\nthird"), flow), nil)
		if err != nil {
			t.Fatalf("ToSlice: unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"first", "second", "third"}, strs(got)); diff != "" {
			t.Errorf("Frames (-want, +got):\n%s", diff)
		}
	})
	t.Run("NoTruncate", func(t *testing.T) {
		flow := framing.Delimiter([]byte("\n"), 1024, false)
		got, err := streams.ToSlice(ctx, streams.Via(chunks("first\nsecond\nthird"), flow), nil)
		if c := code.FromError(err); c != code.FramingTruncated {
			t.Errorf("ToSlice: got %v, want code %v", err, code.FramingTruncated)
		}
		if diff := cmp.Diff([]string{"first", "second"}, strs(got)); diff != "" {
			t.Errorf("Frames (-want, +got):\n%s", diff)
		}
	})
	t.Run("Overflow", func(t *testing.T) {
		flow := framing.Delimiter([]byte("\n"), 1024, true)
		_, err := streams.ToSlice(ctx, streams.Via(chunks(strings.Repeat("z", 2000)), flow), nil)
		if c := code.FromError(err); c != code.FramingSizeExceeded {
			t.Errorf("ToSlice: got %v, want code %v", err, code.FramingSizeExceeded)
		}
	})
	t.Run("Reusable", func(t *testing.T) {
		// Each materialization starts with an empty splitter.
		flow := framing.Delimiter([]byte(";"), 16, true)
		for range 2 {
			got, err := streams.ToSlice(ctx, streams.Via(chunks("a;b"), flow), nil)
			if err != nil {
				t.Fatalf("ToSlice: unexpected error: %v", err)
			}
			if diff := cmp.Diff([]string{"a", "b"}, strs(got)); diff != "" {
				t.Errorf("Frames (-want, +got):\n%s", diff)
			}
		}
	})
	t.Run("RoundTrip", func(t *testing.T) {
		enc := streams.Via(chunks("alpha", "", "gamma"), framing.Terminator([]byte("\r\n")))
		got, err := streams.ToSlice(ctx, streams.Via(enc, framing.Delimiter([]byte("\r\n"), 8, false)), nil)
		if err != nil {
			t.Fatalf("ToSlice: unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"alpha", "", "gamma"}, strs(got)); diff != "" {
			t.Errorf("Frames (-want, +got):\n%s", diff)
		}
	})
}
