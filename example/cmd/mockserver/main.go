// Standalone mock events feed for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/eventwatch watch -c example/config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/eventwatch/internal/mockfeed"
)

func main() {
	fmt.Println("Mock events feed starting on :9999")
	fmt.Println("Serving /repos/octo/hello/events with a new push every 5-20s")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feed := mockfeed.New("octo/hello", 2, slog.Default())
	go feed.RunRandomPushes(ctx, 5*time.Second, 20*time.Second, "octocat", "hubot")

	srv := &http.Server{Addr: ":9999", Handler: feed}
	go func() {
		<-ctx.Done()
		total, notModified := feed.Requests()
		slog.Info("shutting down", "requests", total, "not_modified", notModified)
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
