// Program chatserver is a TCP chat server. Each line a client sends is
// relayed to every connected client, including the sender.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/creachadair/streams/hub"
	"github.com/creachadair/streams/internal/chat"
	"github.com/creachadair/streams/server"
	"golang.org/x/sync/errgroup"
)

var (
	address   = flag.String("address", "127.0.0.1:9999", "Service address")
	maxLine   = flag.Int("max-line", chat.DefaultMaxLine, "Longest line accepted from a client")
	replay    = flag.Int("replay", 0, "Number of recent lines shown to new clients")
	dropSlow  = flag.Bool("drop-slow", false, "Drop lines for slow clients instead of waiting")
	report    = flag.Duration("report", 0, "If positive, log room statistics at this interval")
	doVerbose = flag.Bool("v", false, "Enable verbose logging")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %s [options]

Listen for TCP connections on the given address, and relay each
newline-terminated line received from any client to all connected clients.

A client that sends a line longer than -max-line bytes is disconnected. By
default a slow client slows down the whole room; with -drop-slow, lines that
do not fit in the buffer of a slow client are dropped for that client.

Options:
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	var logger *log.Logger
	if *doVerbose {
		logger = log.New(os.Stderr, "[chatserver] ", log.LstdFlags|log.Lshortfile)
	}
	if err := run(context.Background(), logger); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	opts := &chat.Options{MaxLine: *maxLine, Replay: *replay, Logger: logger}
	if *dropSlow {
		opts.Overflow = hub.DropOldest
	}
	room := chat.NewRoom(opts)
	defer room.Close()

	sopts := &server.Options{ReuseAddr: true, Logger: logger}
	lst, err := server.Listen(ctx, *address, sopts)
	if err != nil {
		return err
	}
	log.Printf("Chat room open at %v", lst.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Loop(gctx, lst, room.Flow(), sopts) })
	if *report > 0 {
		g.Go(func() error {
			t := time.NewTicker(*report)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					log.Printf("Participants: %d", room.Participants())
				}
			}
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Print("Chat room closed")
	return nil
}
