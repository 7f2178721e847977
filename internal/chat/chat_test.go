package chat_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/synctest"

	"github.com/creachadair/mds/mnet"
	"github.com/creachadair/streams/channel"
	"github.com/creachadair/streams/internal/chat"
	"github.com/creachadair/streams/server"
)

const roomAddr = "chat:9999"

// startRoom serves room on a fresh in-memory network, and returns a function
// that connects a new participant. The server stops when the test ends.
func startRoom(t *testing.T, room *chat.Room) func() channel.Channel {
	t.Helper()
	n := mnet.New(t.Name() + " network")
	lst := n.MustListen("tcp", roomAddr)

	ctx, cancel := context.WithCancel(context.Background())
	loopErr := make(chan error, 1)
	go func() { loopErr <- server.Loop(ctx, lst, room.Flow(), nil) }()
	t.Cleanup(func() {
		cancel()
		if err := <-loopErr; !errors.Is(err, context.Canceled) {
			t.Errorf("Loop: got %v, want %v", err, context.Canceled)
		}
		if err := room.Close(); err != nil {
			t.Errorf("Close room: %v", err)
		}
	})

	return func() channel.Channel {
		conn, err := n.DialContext(ctx, "tcp", roomAddr)
		if err != nil {
			t.Fatalf("Dial %q: %v", roomAddr, err)
		}
		ch := channel.Line(conn, conn)
		t.Cleanup(func() { ch.Close() })
		return ch
	}
}

func expectLines(t *testing.T, tag string, ch channel.Channel, want ...string) {
	t.Helper()
	for _, w := range want {
		rec, err := ch.Recv()
		if err != nil {
			t.Fatalf("[%s] Recv: unexpected error: %v", tag, err)
		} else if string(rec) != w {
			t.Errorf("[%s] Recv: got %q, want %q", tag, rec, w)
		}
	}
}

func TestRoom(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		room := chat.NewRoom(nil)
		join := startRoom(t, room)

		alice, bob, carol := join(), join(), join()
		synctest.Wait()
		if got := room.Participants(); got != 3 {
			t.Fatalf("Participants: got %d, want 3", got)
		}

		alice.Send([]byte("hello"))
		synctest.Wait()
		carol.Send([]byte("goodbye"))

		expectLines(t, "alice", alice, "hello", "goodbye")
		expectLines(t, "bob", bob, "hello", "goodbye")
		expectLines(t, "carol", carol, "hello", "goodbye")

		// A participant who leaves no longer receives messages, and the
		// others are not disturbed.
		bob.Close()
		synctest.Wait()
		if got := room.Participants(); got != 2 {
			t.Errorf("Participants after leaving: got %d, want 2", got)
		}
		alice.Send([]byte("still here"))
		expectLines(t, "alice", alice, "still here")
		expectLines(t, "carol", carol, "still here")
	})
}

func TestReplay(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		room := chat.NewRoom(&chat.Options{Replay: 2})
		join := startRoom(t, room)

		first := join()
		synctest.Wait()
		for _, s := range []string{"one", "two", "three"} {
			first.Send([]byte(s))
		}
		expectLines(t, "first", first, "one", "two", "three")

		// A latecomer sees the most recent lines before anything new.
		late := join()
		synctest.Wait()
		first.Send([]byte("four"))
		expectLines(t, "late", late, "two", "three", "four")
	})
}

func TestLongLine(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		room := chat.NewRoom(&chat.Options{MaxLine: 8})
		join := startRoom(t, room)

		rude, polite := join(), join()
		synctest.Wait()

		// A line longer than the limit disconnects the sender.
		rude.Send(bytes.Repeat([]byte("x"), 20))
		if rec, err := rude.Recv(); !errors.Is(err, io.EOF) {
			t.Errorf("Recv: got (%q, %v), want %v", rec, err, io.EOF)
		}

		synctest.Wait()
		if got := room.Participants(); got != 1 {
			t.Errorf("Participants: got %d, want 1", got)
		}
		polite.Send([]byte("ok"))
		expectLines(t, "polite", polite, "ok")
	})
}
