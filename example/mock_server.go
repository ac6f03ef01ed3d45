package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jpalmerr/eventwatch/internal/mockfeed"
)

// StartMockFeed serves a fake events feed for repo on addr and adds a push
// every 5-15 seconds until ctx is cancelled.
// Call this in a goroutine before creating the watcher.
func StartMockFeed(ctx context.Context, addr, repo string, logger *slog.Logger) {
	feed := mockfeed.New(repo, 2, logger)
	if _, err := feed.Push("octocat", "refs/heads/main"); err != nil {
		logger.Error("failed to seed mock feed", "error", err)
	}
	go feed.RunRandomPushes(ctx, 5*time.Second, 15*time.Second, "octocat", "hubot", "monalisa")

	srv := &http.Server{Addr: addr, Handler: feed}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("mock feed error", "error", err)
	}
}
