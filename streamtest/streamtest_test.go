package streamtest_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/code"
	"github.com/creachadair/streams/internal/testutil"
	"github.com/creachadair/streams/streamtest"
	"github.com/google/go-cmp/cmp"
)

var errTest = errors.New("test error")

func TestSubscriber(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sub := streamtest.NewSubscriber[string](t)
		f := streams.Connect(context.Background(), streams.FromSlice("a", "b", "c"), sub.Sink(), nil)

		sub.Request(2)
		sub.ExpectNext("a", "b")
		sub.ExpectNoMessage(time.Second) // no demand for "c" yet
		sub.RequestNext("c")
		sub.ExpectComplete()
		testutil.MustAwait(t, f)
	})
}

func TestPublisher(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		pub := streamtest.NewPublisher[int](t)
		sub := streamtest.NewSubscriber[int](t)
		f := streams.Connect(context.Background(), pub.Source(), sub.Sink(), nil)

		sub.Request(3)
		if n := pub.ExpectRequest(); n != 3 {
			t.Errorf("ExpectRequest: got %d, want 3", n)
		}
		pub.SendNext(1, 2)
		sub.ExpectNext(1, 2)

		pub.SendError(errTest)
		if err := sub.ExpectError(); !errors.Is(err, errTest) {
			t.Errorf("ExpectError: got %v, want %v", err, errTest)
		}
		if _, err := testutil.Await(t, f); !errors.Is(err, errTest) {
			t.Errorf("Connect: got %v, want %v", err, errTest)
		}
	})
}

func TestPublisherComplete(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		pub := streamtest.NewPublisher[int](t)
		type result struct {
			vs  []int
			err error
		}
		done := make(chan result, 1)
		go func() {
			vs, err := streams.ToSlice(context.Background(), pub.Source(), nil)
			done <- result{vs, err}
		}()

		pub.SendNext(5, 6, 7)
		pub.SendComplete()
		r := <-done
		if r.err != nil {
			t.Fatalf("ToSlice: unexpected error: %v", r.err)
		}
		if diff := cmp.Diff([]int{5, 6, 7}, r.vs); diff != "" {
			t.Errorf("ToSlice (-want, +got):\n%s", diff)
		}
	})
}

func TestCancellation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		pub := streamtest.NewPublisher[string](t)
		sub := streamtest.NewSubscriber[string](t)
		f := streams.Connect(context.Background(), pub.Source(), sub.Sink(), nil)

		sub.Cancel()
		pub.ExpectCancellation()
		testutil.MustAwait(t, f)
	})
}

func TestAttachOnce(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sub := streamtest.NewSubscriber[int](t)
		f1 := streams.Connect(context.Background(), streams.Single(1), sub.Sink(), nil)
		synctest.Wait()
		f2 := streams.Connect(context.Background(), streams.Single(2), sub.Sink(), nil)

		sub.RequestNext(1)
		sub.ExpectComplete()
		testutil.MustAwait(t, f1)
		if _, err := testutil.Await(t, f2); code.FromError(err) != code.ConfigurationError {
			t.Errorf("Second attach: got %v, want code %v", err, code.ConfigurationError)
		}
	})
}

// greeter is a flow that sends "first", then echoes its input in upper case.
var greeter = streams.NewFlow(func(ctx context.Context, in *streams.Inlet[string], out *streams.Outlet[string]) error {
	if err := out.Send(ctx, "first"); err != nil {
		return err
	}
	for {
		v, err := in.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		if err := out.Send(ctx, strings.ToUpper(v)); err != nil {
			return err
		}
	}
})

func TestProbePeer(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		in := streamtest.NewSubscriber[string](t)
		out := streamtest.NewPublisher[string](t)
		peer := streams.FromSinkAndSource(in.Sink(), out.Source()).Flow()
		f := streams.Join(context.Background(), peer, greeter, nil)

		in.RequestNext("first")
		out.ExpectRequest()
		out.SendNext("hello")
		in.RequestNext("HELLO")

		// An error sent by the peer fails the flow under test, which passes
		// it back to the peer.
		out.SendError(errTest)
		if err := in.ExpectError(); !errors.Is(err, errTest) {
			t.Errorf("ExpectError: got %v, want %v", err, errTest)
		}
		if _, err := testutil.Await(t, f); !errors.Is(err, errTest) {
			t.Errorf("Join: got %v, want %v", err, errTest)
		}
	})
}
