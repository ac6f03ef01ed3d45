package eventwatch

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultSeenCacheSize is how many event identities a [Watcher]
	// remembers for deduplication.
	DefaultSeenCacheSize = 4096

	// DefaultHistorySize is how many matched events a [Watcher] keeps for
	// its HTTP API.
	DefaultHistorySize = 500
)

// watchConfig holds mutable state during Watcher construction.
type watchConfig struct {
	token         string
	kind          string
	identity      IdentityFunc
	detector      DetectorConfig
	seenCacheSize int
	historySize   int
	port          int
	logger        *slog.Logger
	callbacks     []func(MatchedEvent)
}

// Option is a function that configures a [Watcher] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails, and [New] reports the first such error.
type Option func(*watchConfig) error

// WithToken sets the API credential sent as a bearer token.
//
// Surrounding whitespace is trimmed. Without a token no Authorization header
// is sent, which works for public repositories at a lower rate limit.
func WithToken(token string) Option {
	return func(cfg *watchConfig) error {
		cfg.token = strings.TrimSpace(token)
		return nil
	}
}

// WithKind selects which event kind is reported. Defaults to [KindPush].
//
// Example:
//
//	w, err := eventwatch.New(res,
//	    eventwatch.WithKind(eventwatch.KindRelease),
//	)
//
// Returns an error if kind is empty.
func WithKind(kind string) Option {
	return func(cfg *watchConfig) error {
		kind = strings.TrimSpace(kind)
		if kind == "" {
			return errors.New("event kind cannot be empty")
		}
		cfg.kind = kind
		return nil
	}
}

// WithBaseURL points the watcher at a different API origin, such as a
// GitHub Enterprise host or a test server.
func WithBaseURL(baseURL string) Option {
	return func(cfg *watchConfig) error {
		if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
			return errors.New("base url must start with http:// or https://")
		}
		cfg.detector.BaseURL = baseURL
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cfg *watchConfig) error {
		if strings.TrimSpace(ua) == "" {
			return errors.New("user agent cannot be empty")
		}
		cfg.detector.UserAgent = ua
		return nil
	}
}

// WithAPIVersion sets the X-GitHub-Api-Version header.
func WithAPIVersion(version string) Option {
	return func(cfg *watchConfig) error {
		if strings.TrimSpace(version) == "" {
			return errors.New("api version cannot be empty")
		}
		cfg.detector.APIVersion = version
		return nil
	}
}

// WithDefaultInterval sets the polling cadence used until the server sends
// a poll-interval hint. Defaults to [DefaultInterval].
//
// Returns an error if the duration is zero or negative.
func WithDefaultInterval(d time.Duration) Option {
	return func(cfg *watchConfig) error {
		if d <= 0 {
			return errors.New("default interval must be positive")
		}
		cfg.detector.DefaultInterval = d
		return nil
	}
}

// WithMinInterval sets the floor applied to server interval hints.
// Defaults to [DefaultMinInterval].
func WithMinInterval(d time.Duration) Option {
	return func(cfg *watchConfig) error {
		if d <= 0 {
			return errors.New("min interval must be positive")
		}
		cfg.detector.MinInterval = d
		return nil
	}
}

// WithRequestTimeout bounds each request, including reading the body.
// Defaults to [DefaultRequestTimeout].
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *watchConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.detector.RequestTimeout = d
		return nil
	}
}

// WithFailOnStatus makes the listed response statuses stop the watcher with
// a *[StatusError]. Other unexpected statuses are retried after the interval.
//
// Example:
//
//	w, err := eventwatch.New(res,
//	    eventwatch.WithFailOnStatus(401, 403, 404),
//	)
func WithFailOnStatus(codes ...int) Option {
	return func(cfg *watchConfig) error {
		for _, code := range codes {
			if code < 100 || code > 599 {
				return errors.New("status code must be between 100 and 599")
			}
			if code == http.StatusOK || code == http.StatusNotModified {
				return errors.New("200 and 304 cannot be failure statuses")
			}
		}
		cfg.detector.FailOnStatus = append(cfg.detector.FailOnStatus, codes...)
		return nil
	}
}

// WithHTTPClient replaces the pooled HTTP client. Useful for proxies and
// custom transports.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *watchConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.detector.HTTPClient = c
		return nil
	}
}

// WithSeenCacheSize sets how many identities are remembered for
// deduplication. Defaults to [DefaultSeenCacheSize].
func WithSeenCacheSize(n int) Option {
	return func(cfg *watchConfig) error {
		if n <= 0 {
			return errors.New("seen cache size must be positive")
		}
		cfg.seenCacheSize = n
		return nil
	}
}

// WithHistorySize sets how many matched events are kept for the HTTP API.
// Defaults to [DefaultHistorySize].
func WithHistorySize(n int) Option {
	return func(cfg *watchConfig) error {
		if n <= 0 {
			return errors.New("history size must be positive")
		}
		cfg.historySize = n
		return nil
	}
}

// WithIdentity overrides how events are keyed for deduplication.
// Defaults to [DefaultIdentity] for the configured kind.
func WithIdentity(fn IdentityFunc) Option {
	return func(cfg *watchConfig) error {
		if fn == nil {
			return errors.New("identity function cannot be nil")
		}
		cfg.identity = fn
		return nil
	}
}

// WithEventCallback registers a function called for every new matched event.
//
// Multiple callbacks may be registered; they execute in registration order,
// after the event has been added to the watcher's history.
//
// IMPORTANT: Callbacks run on the polling goroutine and must not block.
// Panics within callbacks are recovered and logged.
//
// Example:
//
//	w, err := eventwatch.New(res,
//	    eventwatch.WithEventCallback(func(ev eventwatch.MatchedEvent) {
//	        log.Printf("new push to %s by %s", ev.Repo, ev.Actor)
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithEventCallback(cb func(MatchedEvent)) Option {
	return func(cfg *watchConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watchConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithPort serves the event API on the given port while the watcher runs.
// 0 disables the server, which is the default.
//
// Returns an error if the port is outside 0-65535.
func WithPort(port int) Option {
	return func(cfg *watchConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}
