package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/eventwatch"
)

const pushFeed = `[
  {"id":"2","type":"PushEvent","actor":{"id":1,"login":"octocat"},"repo":{"id":1,"name":"lulf/go-vex"},"created_at":"2024-05-01T10:00:00Z","payload":{"push_id":1002,"ref":"refs/heads/main"}},
  {"id":"1","type":"ForkEvent","actor":{"id":2,"login":"hubot"},"repo":{"id":1,"name":"lulf/go-vex"},"created_at":"2024-05-01T09:00:00Z","payload":{}}
]`

func TestJSONLineWriter(t *testing.T) {
	var buf bytes.Buffer
	write := jsonLineWriter(&buf, slog.New(slog.NewTextHandler(io.Discard, nil)))

	write(eventwatch.MatchedEvent{ID: "1", Identity: "push:1", Kind: eventwatch.KindPush, Payload: json.RawMessage(`{}`)})
	write(eventwatch.MatchedEvent{ID: "2", Identity: "push:2", Kind: eventwatch.KindPush, Payload: json.RawMessage(`{}`)})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	for i, line := range lines {
		var ev eventwatch.MatchedEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if want := fmt.Sprintf("push:%d", i+1); ev.Identity != want {
			t.Errorf("line %d identity = %q, want %q", i, ev.Identity, want)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONLineWriter_LogsWriteFailure(t *testing.T) {
	var logs bytes.Buffer
	write := jsonLineWriter(failingWriter{}, slog.New(slog.NewTextHandler(&logs, nil)))

	write(eventwatch.MatchedEvent{Identity: "push:9"})

	if !strings.Contains(logs.String(), "failed to write event") {
		t.Errorf("expected a logged write failure, got %q", logs.String())
	}
}

func TestWatchResult(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := watchResult(nil, logger); err != nil {
		t.Errorf("watchResult(nil) = %v, want nil", err)
	}

	err := watchResult(fmt.Errorf("poll: %w", &eventwatch.StatusError{StatusCode: 401}), logger)
	if err == nil || !strings.Contains(err.Error(), "polling stopped") {
		t.Errorf("status error should stop polling, got %v", err)
	}

	err = watchResult(errors.New("boom"), logger)
	if err == nil || !strings.Contains(err.Error(), "watch error") {
		t.Errorf("other errors should be wrapped as watch errors, got %v", err)
	}
}

func TestRunWatch_StreamsEventsUntilFailureStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("ETag", `W/"v1"`)
			_, _ = w.Write([]byte(pushFeed))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	configPath := writeConfig(t, fmt.Sprintf(`
owner: lulf
repo: go-vex
kind: PushEvent
identity: push
base_url: %s
default_interval: 10ms
min_interval: 10ms
fail_on_status: [401]
`, srv.URL))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)
	rootCmd.SetArgs([]string{"watch", "-c", configPath})

	done := make(chan error, 1)
	go func() { done <- rootCmd.Execute() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on the failure status")
	}

	if err == nil || !strings.Contains(err.Error(), "polling stopped") {
		t.Fatalf("watch error = %v, want polling stopped", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d event lines, want 1: %q", len(lines), out.String())
	}
	var ev eventwatch.MatchedEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if ev.Identity != "push:1002" {
		t.Errorf("identity = %q, want push:1002", ev.Identity)
	}
	if ev.Actor != "octocat" {
		t.Errorf("actor = %q, want octocat", ev.Actor)
	}
}

func TestRunWatch_MissingConfig(t *testing.T) {
	rootCmd.SetArgs([]string{"watch", "-c", "/nonexistent/eventwatch.yaml"})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("error = %v, want failed to load config", err)
	}
}
