// Package chat implements a line-oriented chat room over a hub.Bus, for use
// as the handler of a connection server.
package chat

import (
	"log"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/framing"
	"github.com/creachadair/streams/hub"
)

// DefaultMaxLine is the longest line a participant may send, in bytes, if
// Options.MaxLine is not set.
const DefaultMaxLine = 1024

// Options control the behaviour of a Room. A nil *Options provides sensible
// defaults.
type Options struct {
	// The longest line accepted from a participant. A participant that
	// sends a longer line is disconnected.
	MaxLine int

	// The number of recent lines replayed to a participant who joins.
	Replay int

	// What to do when a participant does not keep up with the room.
	Overflow hub.Overflow

	// If not nil, send debug logs here.
	Logger *log.Logger
}

func (o *Options) maxLine() int {
	if o == nil || o.MaxLine <= 0 {
		return DefaultMaxLine
	}
	return o.MaxLine
}

// A Room relays every line sent by any participant to every participant,
// including the sender.
type Room struct {
	bus     *hub.Bus[string]
	maxLine int
}

// NewRoom constructs an empty room. The caller must call Close when the room
// is no longer needed.
func NewRoom(opts *Options) *Room {
	bo := &hub.BusOptions{BufferSize: hub.DefaultBufferSize}
	if opts != nil {
		bo.Replay = opts.Replay
		bo.Overflow = opts.Overflow
		bo.Logger = opts.Logger
	}
	return &Room{bus: hub.NewBus[string](bo), maxLine: opts.maxLine()}
}

// Flow returns a connection handler that joins the peer to the room. Input
// from the peer is split into newline-terminated lines, each published to
// the room; each line published to the room is written back to the peer.
// The directions are coupled, so the peer leaves the room when either
// direction ends.
func (r *Room) Flow() streams.Flow[[]byte, []byte] {
	in := streams.To(
		streams.Compose(
			framing.Delimiter([]byte("\n"), r.maxLine, false),
			streams.Map(func(b []byte) string { return string(b) }),
		),
		r.bus.Sink(),
	)
	out := streams.Via(r.bus.Source(), streams.Map(func(s string) []byte {
		return []byte(s + "\n")
	}))
	return streams.FromSinkAndSourceCoupled(in, out).Flow()
}

// Participants reports the number of participants currently receiving
// messages from the room.
func (r *Room) Participants() int { return len(r.bus.Consumers()) }

// Close disconnects all participants and shuts down the room.
func (r *Room) Close() error {
	r.bus.Shutdown()
	return r.bus.Wait()
}
