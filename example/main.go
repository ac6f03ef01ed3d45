package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/eventwatch"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start mock feed (see mock_server.go)
	go StartMockFeed(ctx, ":9999", "octo/hello", logger)
	time.Sleep(100 * time.Millisecond)

	resource, err := eventwatch.NewResource("octo", "hello")
	if err != nil {
		logger.Error("invalid resource", "error", err)
		os.Exit(1)
	}

	w, err := eventwatch.New(resource,
		eventwatch.WithBaseURL("http://localhost:9999"),
		eventwatch.WithDefaultInterval(5*time.Second),
		eventwatch.WithMinInterval(time.Second),
		eventwatch.WithPort(8080),
		eventwatch.WithLogger(logger),
		eventwatch.WithEventCallback(func(ev eventwatch.MatchedEvent) {
			push, err := eventwatch.DecodePayload[eventwatch.PushPayload](eventwatch.Envelope{
				Kind:    ev.Kind,
				Payload: ev.Payload,
			})
			if err != nil {
				fmt.Printf("  new %s by %s\n", ev.Kind, ev.Actor)
				return
			}
			fmt.Printf("  push #%d by %s to %s\n", push.PushID, ev.Actor, push.Ref)
		}),
	)
	if err != nil {
		logger.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  eventwatch demo")
	fmt.Println()
	fmt.Println("  Watching octo/hello on a mock feed at http://localhost:9999")
	fmt.Println("  Event API:  http://localhost:8080/api/events")
	fmt.Println("  Live (SSE): http://localhost:8080/api/sse")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := w.Start(ctx); err != nil {
		logger.Error("watcher error", "error", err)
		os.Exit(1)
	}
}
