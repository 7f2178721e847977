// Program tickserver is a TCP server that ignores its clients and writes the
// current time to each of them at a regular interval.
//
// The read direction of each connection is closed as soon as the client is
// accepted, while the write direction stays open until the client goes away.
// This requires a transport that supports half-closed connections.
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
	"strconv"
	"time"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/server"
)

var (
	address   = flag.String("address", "127.0.0.1:9999", "Service address")
	interval  = flag.Duration("interval", time.Second, "Time between ticks")
	idle      = flag.Duration("idle", 0, "Idle timeout for connections (0 means none)")
	doVerbose = flag.Bool("v", false, "Enable verbose logging")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %s [options]

Listen for TCP connections on the given address, and write the current time
in milliseconds since the epoch, one line per tick, to each client. Input from
clients is not read.

Options:
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	if *interval <= 0 {
		log.Fatal("The -interval must be positive")
	}
	var logger *log.Logger
	if *doVerbose {
		logger = log.New(os.Stderr, "[tickserver] ", log.LstdFlags|log.Lshortfile)
	}
	if err := run(context.Background(), logger); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	opts := &server.Options{
		HalfClose:   true,
		IdleTimeout: *idle,
		ReuseAddr:   true,
		Logger:      logger,
	}
	lst, err := server.Listen(ctx, *address, opts)
	if err != nil {
		return err
	}
	log.Printf("Listening at %v", lst.Addr())

	flow := streams.FromSinkAndSource(
		streams.Cancelled[[]byte](),
		streams.Via(streams.Tick(*interval, *interval, struct{}{}),
			streams.Map(func(struct{}) []byte {
				return append(strconv.AppendInt(nil, time.Now().UnixMilli(), 10), '\n')
			}),
		),
	).Flow()

	err = server.Loop(ctx, lst, flow, opts)
	if errors.Is(err, context.Canceled) {
		log.Print("Shutting down")
		return nil
	}
	return err
}
