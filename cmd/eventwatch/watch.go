package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/eventwatch"
	"github.com/jpalmerr/eventwatch/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// watchCmd polls the configured repository and prints new events.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream new events as JSON lines",
	Long: `Watch the configured repository and print each new matching event.

The command will:
  - Load configuration from the specified YAML file
  - Poll the repository's events feed, honouring ETag and X-Poll-Interval
  - Print one JSON object per new event to stdout
  - Serve the event API when a port is configured

Logs go to stderr as JSON. The command runs until interrupted (Ctrl+C) or
receives SIGTERM, or until a status listed in fail_on_status is returned.

Example:
  eventwatch watch -c eventwatch.yaml
  eventwatch watch -c eventwatch.yaml --port 8080 --debug`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().Int("port", -1, "serve the event API on this port (overrides config)")
	watchCmd.Flags().Bool("debug", false, "enable debug logging")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	logger := newLogger(debug)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"resource", cfg.Resource(),
		"kind", cfg.Kind,
		"authenticated", cfg.Token != "",
	)

	var extra []eventwatch.Option
	if port, _ := cmd.Flags().GetInt("port"); port >= 0 {
		extra = append(extra, eventwatch.WithPort(port))
	}
	extra = append(extra, eventwatch.WithEventCallback(jsonLineWriter(cmd.OutOrStdout(), logger)))

	w, err := config.BuildWatcher(cfg, logger, extra...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return watchResult(err, logger)

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			return watchResult(err, logger)
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

func watchResult(err error, logger *slog.Logger) error {
	var statusErr *eventwatch.StatusError
	switch {
	case err == nil:
		logger.Info("shutdown complete")
		return nil
	case errors.As(err, &statusErr):
		return fmt.Errorf("polling stopped: %w", err)
	default:
		return fmt.Errorf("watch error: %w", err)
	}
}

// jsonLineWriter returns a callback writing each event as one JSON line.
// Callbacks run on a single goroutine, so the encoder needs no lock.
func jsonLineWriter(out io.Writer, logger *slog.Logger) func(eventwatch.MatchedEvent) {
	enc := json.NewEncoder(out)
	return func(ev eventwatch.MatchedEvent) {
		if err := enc.Encode(ev); err != nil {
			logger.Error("failed to write event", "identity", ev.Identity, "error", err)
		}
	}
}
