package eventwatch

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"
)

func testResource(t *testing.T) Resource {
	t.Helper()
	r, err := NewResource("lulf", "go-vex")
	if err != nil {
		t.Fatalf("NewResource() error = %v", err)
	}
	return r
}

func TestNew_Defaults(t *testing.T) {
	w, err := New(testResource(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if w.Kind() != KindPush {
		t.Errorf("Kind() = %q, want %q", w.Kind(), KindPush)
	}
	if w.Port() != 0 {
		t.Errorf("Port() = %d, want 0 (server disabled)", w.Port())
	}
	if w.Detector().URL() != "https://api.github.com/repos/lulf/go-vex/events" {
		t.Errorf("URL() = %q", w.Detector().URL())
	}
	if got := w.Detector().State().Interval; got != DefaultInterval {
		t.Errorf("Interval = %v, want %v", got, DefaultInterval)
	}
	if len(w.Events()) != 0 {
		t.Errorf("Events() = %d items, want 0", len(w.Events()))
	}
}

func TestNew_ZeroResource(t *testing.T) {
	if _, err := New(Resource{}); err == nil {
		t.Error("New() expected error for zero resource, got nil")
	}
}

func TestNew_OptionsApplied(t *testing.T) {
	w, err := New(testResource(t),
		WithKind(KindRelease),
		WithBaseURL("https://ghe.example.com/api/v3/"),
		WithDefaultInterval(90*time.Second),
		WithPort(9191),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if w.Kind() != KindRelease {
		t.Errorf("Kind() = %q, want %q", w.Kind(), KindRelease)
	}
	if w.Port() != 9191 {
		t.Errorf("Port() = %d, want 9191", w.Port())
	}
	if w.Detector().URL() != "https://ghe.example.com/api/v3/repos/lulf/go-vex/events" {
		t.Errorf("URL() = %q", w.Detector().URL())
	}
	if got := w.Detector().State().Interval; got != 90*time.Second {
		t.Errorf("Interval = %v, want 90s", got)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{"empty kind", WithKind("  "), "kind"},
		{"bad base url", WithBaseURL("api.github.com"), "base url"},
		{"empty user agent", WithUserAgent(""), "user agent"},
		{"empty api version", WithAPIVersion(" "), "api version"},
		{"zero interval", WithDefaultInterval(0), "default interval"},
		{"negative min interval", WithMinInterval(-time.Second), "min interval"},
		{"zero request timeout", WithRequestTimeout(0), "request timeout"},
		{"fail on 200", WithFailOnStatus(200), "cannot be failure"},
		{"fail on 304", WithFailOnStatus(401, 304), "cannot be failure"},
		{"fail on out of range", WithFailOnStatus(42), "between 100 and 599"},
		{"nil http client", WithHTTPClient(nil), "http client"},
		{"zero seen cache", WithSeenCacheSize(0), "seen cache"},
		{"zero history", WithHistorySize(0), "history"},
		{"nil identity", WithIdentity(nil), "identity"},
		{"nil logger", WithLogger(nil), "logger"},
		{"negative port", WithPort(-1), "port"},
		{"port too high", WithPort(65536), "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testResource(t), tt.opt)
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWithPort_ValidEdgeCases(t *testing.T) {
	for _, port := range []int{0, 1, 65535} {
		if _, err := New(testResource(t), WithPort(port)); err != nil {
			t.Errorf("WithPort(%d) error = %v", port, err)
		}
	}
}

func TestWithEventCallback_NilIsIgnored(t *testing.T) {
	w, err := New(testResource(t), WithEventCallback(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(w.callbacks) != 0 {
		t.Errorf("callbacks = %d, want 0", len(w.callbacks))
	}
}

func TestWithIdentity_DefaultFollowsKind(t *testing.T) {
	w, err := New(testResource(t), WithKind(KindFork))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	id, err := w.identity(Envelope{ID: "77", Kind: KindFork})
	if err != nil || id != "event:77" {
		t.Errorf("identity = %q, %v; want event:77", id, err)
	}
}

func TestWithHTTPClient(t *testing.T) {
	called := false
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return jsonResponse(r, http.StatusOK, `[]`), nil
	})}

	w, err := New(testResource(t), WithHTTPClient(client), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	useFakeClock(w)

	if _, err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !called {
		t.Error("custom HTTP client was not used")
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	w, err := New(testResource(t), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w.logger.Info("probe")

	if !strings.Contains(buf.String(), "probe") {
		t.Error("custom logger was not used")
	}
	if !strings.Contains(buf.String(), "resource=lulf/go-vex") {
		t.Errorf("log line should carry the resource, got %q", buf.String())
	}
}
