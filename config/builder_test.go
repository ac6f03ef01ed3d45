package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jpalmerr/eventwatch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildWatcher_Minimal(t *testing.T) {
	cfg, err := Parse([]byte("owner: lulf\nrepo: go-vex\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	w, err := BuildWatcher(cfg, testLogger())
	if err != nil {
		t.Fatalf("BuildWatcher() error = %v", err)
	}

	if w.Kind() != eventwatch.KindPush {
		t.Errorf("Kind() = %q, want %q", w.Kind(), eventwatch.KindPush)
	}
	if w.Port() != 0 {
		t.Errorf("Port() = %d, want 0", w.Port())
	}
	if got := w.Detector().URL(); got != "https://api.github.com/repos/lulf/go-vex/events" {
		t.Errorf("URL() = %q", got)
	}
	if got := w.Detector().State().Interval; got != eventwatch.DefaultInterval {
		t.Errorf("Interval = %v, want %v", got, eventwatch.DefaultInterval)
	}
}

func TestBuildWatcher_AllOptions(t *testing.T) {
	yaml := `
owner: lulf
repo: go-vex
token: abc
kind: ReleaseEvent
base_url: http://localhost:9999/api
user_agent: ua
api_version: "2024-01-01"
default_interval: 45s
min_interval: 2s
request_timeout: 5s
seen_cache_size: 10
history_size: 10
port: 9191
fail_on_status: [401]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	w, err := BuildWatcher(cfg, testLogger())
	if err != nil {
		t.Fatalf("BuildWatcher() error = %v", err)
	}

	if w.Kind() != eventwatch.KindRelease {
		t.Errorf("Kind() = %q, want %q", w.Kind(), eventwatch.KindRelease)
	}
	if w.Port() != 9191 {
		t.Errorf("Port() = %d, want 9191", w.Port())
	}
	if got := w.Detector().URL(); got != "http://localhost:9999/api/repos/lulf/go-vex/events" {
		t.Errorf("URL() = %q", got)
	}
	if got := w.Detector().State().Interval; got != 45*time.Second {
		t.Errorf("Interval = %v, want 45s", got)
	}
}

func TestBuildWatcher_InvalidResource(t *testing.T) {
	// bypasses Parse to reach the resource check
	cfg := &Config{Owner: "-bad", Repo: "go-vex", Kind: "PushEvent"}
	if _, err := BuildWatcher(cfg, testLogger()); err == nil {
		t.Error("BuildWatcher() expected error for invalid owner")
	}
}

func TestBuildWatcher_ExtraOptionsApplyLast(t *testing.T) {
	cfg, err := Parse([]byte("owner: lulf\nrepo: go-vex\nport: 9000\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	w, err := BuildWatcher(cfg, testLogger(), eventwatch.WithPort(0))
	if err != nil {
		t.Fatalf("BuildWatcher() error = %v", err)
	}
	if w.Port() != 0 {
		t.Errorf("Port() = %d, want override 0", w.Port())
	}
}

func TestBuildOptions_OnlySetFields(t *testing.T) {
	cfg := &Config{Owner: "a", Repo: "b", Kind: "PushEvent"}
	if got := len(BuildOptions(cfg)); got != 1 {
		t.Errorf("len(BuildOptions()) = %d, want 1 (kind only)", got)
	}

	cfg.Token = "t"
	cfg.Port = 8080
	cfg.Identity = "event"
	if got := len(BuildOptions(cfg)); got != 4 {
		t.Errorf("len(BuildOptions()) = %d, want 4", got)
	}
}

func TestBuildIdentity(t *testing.T) {
	push := eventwatch.Envelope{ID: "1", Kind: eventwatch.KindPush, Payload: json.RawMessage(`{"push_id":5}`)}

	tests := []struct {
		name string
		want string
	}{
		{"push", "push:5"},
		{"event", "event:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := buildIdentity(tt.name)
			if fn == nil {
				t.Fatal("buildIdentity() = nil")
			}
			got, err := fn(push)
			if err != nil {
				t.Fatalf("identity error = %v", err)
			}
			if got != tt.want {
				t.Errorf("identity = %q, want %q", got, tt.want)
			}
		})
	}

	for _, name := range []string{"", "default"} {
		if buildIdentity(name) != nil {
			t.Errorf("buildIdentity(%q) should defer to the watcher default", name)
		}
	}
}
