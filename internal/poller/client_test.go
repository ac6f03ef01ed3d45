package poller

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

// TestClient_ConnectionReuse verifies that the HTTP client reuses connections
// when making sequential requests to the same host.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewClient()

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5

	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		resp := client.Fetch(ctx, Request{URL: server.URL, Timeout: 5 * time.Second})
		if resp.Error != nil {
			t.Fatalf("request %d failed: %v", i, resp.Error)
		}
	}

	// all requests after the first should reuse the connection
	expectedMinReuse := numRequests - 2 // allow some tolerance
	if reusedCount < expectedMinReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			expectedMinReuse, reusedCount, numRequests)
	}
}

func TestClient_Fetch_SendsHeadersAndCapturesResponse(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Header().Set("ETag", `W/"abc"`)
		w.Header().Set("X-Poll-Interval", "60")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"type":"PushEvent","payload":{}}]`))
	}))
	defer server.Close()

	client := NewClient()
	resp := client.Fetch(context.Background(), Request{
		URL: server.URL,
		Headers: map[string]string{
			"Accept":        "application/json",
			"If-None-Match": `W/"prev"`,
		},
		Timeout: time.Second,
	})

	if resp.Error != nil {
		t.Fatalf("Fetch() error = %v", resp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("etag"); got != `W/"abc"` {
		t.Errorf("Header etag = %q, want %q", got, `W/"abc"`)
	}
	if got := resp.Header.Get("x-poll-interval"); got != "60" {
		t.Errorf("Header x-poll-interval = %q, want %q", got, "60")
	}
	if !strings.Contains(string(resp.Body), "PushEvent") {
		t.Errorf("Body = %q, want it to contain PushEvent", resp.Body)
	}
	if gotHeaders.Get("Accept") != "application/json" {
		t.Errorf("server saw Accept = %q", gotHeaders.Get("Accept"))
	}
	if gotHeaders.Get("If-None-Match") != `W/"prev"` {
		t.Errorf("server saw If-None-Match = %q", gotHeaders.Get("If-None-Match"))
	}
}

func TestClient_Fetch_NotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	resp := NewClient().Fetch(context.Background(), Request{URL: server.URL, Timeout: time.Second})
	if resp.Error != nil {
		t.Fatalf("Fetch() error = %v", resp.Error)
	}
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusNotModified)
	}
	if len(resp.Body) != 0 {
		t.Errorf("Body = %q, want empty", resp.Body)
	}
}

func TestClient_Fetch_TransportError(t *testing.T) {
	// grab a free port and close it so the connection is refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	resp := NewClient().Fetch(context.Background(), Request{URL: "http://" + addr, Timeout: time.Second})
	if resp.Error == nil {
		t.Fatal("Fetch() expected error for refused connection")
	}
	if resp.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", resp.StatusCode)
	}
	if resp.Header != nil {
		t.Errorf("Header = %v, want nil", resp.Header)
	}
}

func TestClient_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	start := time.Now()
	resp := NewClient().Fetch(context.Background(), Request{URL: server.URL, Timeout: 50 * time.Millisecond})
	if resp.Error == nil {
		t.Fatal("Fetch() expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Fetch() took %v, expected to time out quickly", elapsed)
	}
}

func TestClient_Fetch_InvalidURL(t *testing.T) {
	resp := NewClient().Fetch(context.Background(), Request{URL: "://bad"})
	if resp.Error == nil {
		t.Fatal("Fetch() expected error for invalid URL")
	}
	if !strings.Contains(resp.Error.Error(), "failed to create request") {
		t.Errorf("error = %v, want it to mention request creation", resp.Error)
	}
}

func TestNewClientWith_UsesProvidedClient(t *testing.T) {
	var called bool
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{
			StatusCode: http.StatusNotModified,
			Header:     http.Header{"Etag": []string{`"x"`}},
			Body:       http.NoBody,
			Request:    r,
		}, nil
	})}

	resp := NewClientWith(hc).Fetch(context.Background(), Request{URL: "https://api.example.com/repos/a/b/events"})
	if !called {
		t.Fatal("custom transport was not used")
	}
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusNotModified)
	}
	if NewClientWith(nil) == nil {
		t.Error("NewClientWith(nil) = nil, want default client")
	}
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient()

	client.Close()
	client.Close()
	client.Close()
}

// TestClient_Close_NilClient verifies that Close() handles nil receiver safely.
func TestClient_Close_NilClient(t *testing.T) {
	var client *Client

	client.Close()
}

// TestClient_Close_ActuallyClosesConnections verifies that Close closes idle
// connections, but the client remains usable for new requests.
func TestClient_Close_ActuallyClosesConnections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewClient()

	for i := 0; i < 5; i++ {
		resp := client.Fetch(context.Background(), Request{URL: server.URL, Timeout: time.Second})
		if resp.Error != nil {
			t.Fatalf("request %d failed: %v", i, resp.Error)
		}
	}

	client.Close()

	resp := client.Fetch(context.Background(), Request{URL: server.URL, Timeout: time.Second})
	if resp.Error != nil {
		t.Errorf("request after Close failed: %v", resp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
