package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// event pages are a few hundred KB at most; anything past this is truncated
// and will fail to decode, which the detector treats as "nothing new"
const maxResponseBodySize = 10 << 20 // 10MB

// connection pooling limits; a detector talks to a single host
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 2
	defaultMaxConnsPerHost     = 2
	defaultIdleConnTimeout     = 90 * time.Second
)

// Request describes a single conditional GET issued by [Client.Fetch].
type Request struct {
	// URL is the absolute target URL.
	URL string

	// Headers are set on the outgoing request. The client adds none of its own.
	Headers map[string]string

	// Timeout bounds the whole exchange, body read included.
	// Zero means no per-request timeout beyond the caller's context.
	Timeout time.Duration
}

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the HTTP response body, limited to 10MB.
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 304, 403).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Header holds the response headers. Nil on transport failure.
	Header http.Header

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request.
	// nil indicates a complete response was received, whatever its status.
	Error error
}

// Client is an HTTP client wrapper for the events endpoint.
//
// Client uses per-request timeouts via context rather than a global timeout.
// Response bodies are limited to 10MB.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new polling [Client] with its own pooled transport.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// NewClientWith wraps an existing *http.Client, e.g. one with custom TLS or
// a test transport. A nil hc falls back to [NewClient].
func NewClientWith(hc *http.Client) *Client {
	if hc == nil {
		return NewClient()
	}
	return &Client{httpClient: hc}
}

// Fetch performs a GET request and returns a structured [Response].
//
// Fetch always returns a Response; errors are captured in the Error field
// rather than returned separately. A non-nil Error with a zero StatusCode
// means no response arrived at all. A non-nil Error with a StatusCode means
// headers arrived but the body could not be read; Header is populated.
func (c *Client) Fetch(ctx context.Context, r Request) Response {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver. After Close the client
// remains usable; new connections are established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
