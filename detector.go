package eventwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpalmerr/eventwatch/internal/poller"
)

const (
	// DefaultBaseURL is the public GitHub REST API origin.
	DefaultBaseURL = "https://api.github.com"

	// DefaultUserAgent identifies the client to the API.
	DefaultUserAgent = "eventwatch"

	// DefaultAPIVersion is sent in the X-GitHub-Api-Version header.
	DefaultAPIVersion = "2022-11-28"

	// DefaultInterval is the polling cadence until the server sends a
	// poll-interval hint. It is also the safety delay set before each
	// request, whatever the configured cadence.
	DefaultInterval = 300 * time.Second

	// DefaultMinInterval is the smallest interval a server hint may set.
	DefaultMinInterval = time.Second

	// DefaultRequestTimeout bounds a single request, body included.
	DefaultRequestTimeout = 30 * time.Second
)

// response headers the detector reads; net/http canonicalizes lookups
const (
	headerPollInterval = "X-Poll-Interval"
	headerETag         = "ETag"
)

// Phase is the detector's position in its poll cycle.
type Phase string

const (
	// PhaseIdle means no WaitForEvents call is in progress.
	PhaseIdle Phase = "idle"

	// PhaseAwaiting means the detector is waiting for the next eligible time.
	PhaseAwaiting Phase = "awaiting"

	// PhaseRequesting means a request is in flight.
	PhaseRequesting Phase = "requesting"

	// PhaseEvaluating means a response is being applied.
	PhaseEvaluating Phase = "evaluating"
)

// DetectorConfig holds the fixed settings of a [Detector].
//
// Zero values are replaced by the package defaults, so a zero DetectorConfig
// targets the public API with a five minute cadence.
type DetectorConfig struct {
	// BaseURL is the API origin. Defaults to [DefaultBaseURL].
	BaseURL string

	// UserAgent is sent in the User-Agent header. Defaults to [DefaultUserAgent].
	UserAgent string

	// APIVersion is sent in the X-GitHub-Api-Version header.
	// Defaults to [DefaultAPIVersion].
	APIVersion string

	// DefaultInterval is the cadence before any hint arrives.
	// Defaults to [DefaultInterval].
	DefaultInterval time.Duration

	// MinInterval is the floor for hinted intervals. Defaults to [DefaultMinInterval].
	MinInterval time.Duration

	// RequestTimeout bounds each request. Defaults to [DefaultRequestTimeout].
	RequestTimeout time.Duration

	// FailOnStatus lists response statuses that end WaitForEvents with a
	// *[StatusError] instead of being retried after the interval.
	FailOnStatus []int

	// HTTPClient overrides the pooled client. Optional.
	HTTPClient *http.Client

	// Logger receives cycle logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = DefaultInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// State is a point-in-time snapshot of a [Detector]'s schedule and cache.
type State struct {
	Resource     string        `json:"resource"`
	Phase        Phase         `json:"phase"`
	NextEligible time.Time     `json:"next_eligible"`
	Interval     time.Duration `json:"interval"`
	ETag         string        `json:"etag,omitempty"`
	LastStatus   int           `json:"last_status,omitempty"`
	LastPolledAt time.Time     `json:"last_polled_at,omitempty"`
}

// Detector polls the events feed of one repository and reports new events
// of a requested kind.
//
// A Detector owns its schedule and validation token. It issues one
// conditional request per cycle, honours the server's poll-interval hint,
// and echoes the last ETag so unchanged feeds cost a 304.
//
// Detector is safe for concurrent use, but calls to [Detector.WaitForEvents]
// are serialized: at most one cycle is in flight at a time.
type Detector struct {
	resource Resource
	token    string
	cfg      DetectorConfig
	url      string
	client   *poller.Client
	logger   *slog.Logger
	failOn   map[int]bool

	// swapped in tests
	now        func() time.Time
	sleepUntil func(context.Context, time.Time) error

	// callMu serializes WaitForEvents; mu guards the fields below it.
	callMu sync.Mutex

	mu         sync.Mutex
	schedule   *poller.Schedule
	etag       string
	hasETag    bool
	phase      Phase
	lastStatus int
	lastPolled time.Time
}

// NewDetector creates a [Detector] for resource.
//
// token is the API credential; surrounding whitespace is trimmed. An empty
// token sends no Authorization header, which works for public repositories
// at a lower rate limit. The first request is eligible immediately.
func NewDetector(resource Resource, token string, cfg DetectorConfig) (*Detector, error) {
	if resource.IsZero() {
		return nil, errors.New("resource is required")
	}
	cfg = cfg.withDefaults()
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base url must start with http:// or https://, got %q", cfg.BaseURL)
	}

	failOn := make(map[int]bool, len(cfg.FailOnStatus))
	for _, code := range cfg.FailOnStatus {
		if code == http.StatusOK || code == http.StatusNotModified {
			return nil, fmt.Errorf("status %d cannot be treated as a failure", code)
		}
		failOn[code] = true
	}

	return &Detector{
		resource:   resource,
		token:      strings.TrimSpace(token),
		cfg:        cfg,
		url:        resource.eventsURL(cfg.BaseURL),
		client:     poller.NewClientWith(cfg.HTTPClient),
		logger:     cfg.Logger.With("resource", resource.String()),
		failOn:     failOn,
		now:        time.Now,
		sleepUntil: poller.SleepUntil,
		schedule:   poller.NewSchedule(time.Now(), cfg.DefaultInterval, cfg.MinInterval),
		phase:      PhaseIdle,
	}, nil
}

// Resource returns the polled repository.
func (d *Detector) Resource() Resource {
	return d.resource
}

// URL returns the events endpoint the detector polls.
func (d *Detector) URL() string {
	return d.url
}

// State returns a snapshot of the detector's schedule and cache.
// It does not wait for an in-flight cycle.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Resource:     d.resource.String(),
		Phase:        d.phase,
		NextEligible: d.schedule.Next(),
		Interval:     d.schedule.Interval(),
		ETag:         d.etag,
		LastStatus:   d.lastStatus,
		LastPolledAt: d.lastPolled,
	}
}

// WaitForEvents blocks until the feed returns a batch of events and reports
// those whose kind equals kind, in feed order. The batch may be empty when
// the page changed but held no events of that kind.
//
// Not-modified responses, undecodable bodies, and unexpected statuses are
// absorbed: the detector waits out the current interval and polls again.
// The call therefore has no upper bound on its duration and should be given
// a cancellable ctx.
//
// Returns:
//   - ctx.Err() if ctx is cancelled while waiting or mid-request
//   - *[TransportError] if the request produced no response
//   - *[StatusError] for statuses listed in [DetectorConfig.FailOnStatus]
func (d *Detector) WaitForEvents(ctx context.Context, kind string) ([]Envelope, error) {
	d.callMu.Lock()
	defer d.callMu.Unlock()
	defer d.setPhase(PhaseIdle)

	for {
		d.setPhase(PhaseAwaiting)
		if err := d.sleepUntil(ctx, d.nextEligible()); err != nil {
			return nil, err
		}
		// cancellation is checked once more at the Awaiting -> Requesting edge
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, done, err := d.cycle(ctx, kind)
		if done {
			return batch, err
		}
	}
}

// cycle performs one request and applies the response. done reports whether
// WaitForEvents should return batch and err to its caller.
func (d *Detector) cycle(ctx context.Context, kind string) (batch []Envelope, done bool, err error) {
	cycleID := uuid.NewString()
	logger := d.logger.With("cycle_id", cycleID)

	d.mu.Lock()
	d.phase = PhaseRequesting
	headers := d.requestHeaders()
	// pessimistic default in case no usable response comes back
	d.schedule.Defer(d.now(), DefaultInterval)
	d.mu.Unlock()

	_, conditional := headers["If-None-Match"]
	logger.Debug("polling events", "url", d.url, "conditional", conditional)

	resp := d.client.Fetch(ctx, poller.Request{
		URL:     d.url,
		Headers: headers,
		Timeout: d.cfg.RequestTimeout,
	})

	if resp.StatusCode == 0 {
		d.mu.Lock()
		d.schedule.Advance(d.now())
		next, interval := d.schedule.Next(), d.schedule.Interval()
		d.lastPolled = d.now()
		d.mu.Unlock()

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, true, ctxErr
		}
		logger.Warn("poll failed",
			"error", resp.Error,
			"retry_in", interval.String(),
			"next_eligible", next,
		)
		return nil, true, &TransportError{URL: d.url, Err: resp.Error}
	}

	d.applyResponse(logger, resp)

	switch {
	case resp.StatusCode == http.StatusNotModified:
		logger.Debug("no events since last poll")
		return nil, false, nil

	case resp.StatusCode == http.StatusOK:
		if resp.Error != nil {
			logger.Warn("failed to read events body", "error", resp.Error)
			return nil, false, nil
		}
		all, err := DecodeEnvelopes(resp.Body)
		if err != nil {
			logger.Warn("ignoring malformed events body", "error", err, "bytes", len(resp.Body))
			return nil, false, nil
		}
		matched := FilterKind(all, kind)
		logger.Debug("events received", "total", len(all), "matched", len(matched), "kind", kind)
		return matched, true, nil

	case d.failOn[resp.StatusCode]:
		logger.Error("poll rejected", "status", resp.StatusCode)
		return nil, true, &StatusError{URL: d.url, StatusCode: resp.StatusCode}

	default:
		logger.Warn("unexpected status, retrying after interval", "status", resp.StatusCode)
		return nil, false, nil
	}
}

// applyResponse updates interval, validation token and next eligible time
// from a received response, whatever its status.
func (d *Detector) applyResponse(logger *slog.Logger, resp poller.Response) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.phase = PhaseEvaluating
	d.lastStatus = resp.StatusCode
	d.lastPolled = d.now()

	if interval, changed := d.schedule.ApplyHint(resp.Header.Get(headerPollInterval)); changed {
		logger.Info("poll interval updated", "interval", interval.String())
	}

	// replaced outright, even when the body turns out to be unusable
	if values := resp.Header.Values(headerETag); len(values) > 0 {
		d.etag = values[0]
		d.hasETag = true
	}

	d.schedule.Advance(d.now())
	logger.Debug("next poll scheduled",
		"status", resp.StatusCode,
		"interval", d.schedule.Interval().String(),
		"next_eligible", d.schedule.Next(),
	)
}

// requestHeaders builds the headers for the next request. Caller holds mu.
func (d *Detector) requestHeaders() map[string]string {
	headers := map[string]string{
		"Accept":               "application/json",
		"User-Agent":           d.cfg.UserAgent,
		"X-GitHub-Api-Version": d.cfg.APIVersion,
	}
	if d.token != "" {
		headers["Authorization"] = "Bearer " + d.token
	}
	// an empty ETag is still echoed
	if d.hasETag {
		headers["If-None-Match"] = d.etag
	}
	return headers
}

func (d *Detector) nextEligible() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.schedule.Next()
}

func (d *Detector) setPhase(p Phase) {
	d.mu.Lock()
	d.phase = p
	d.mu.Unlock()
}

// Close releases idle connections held by the detector's HTTP client.
func (d *Detector) Close() {
	d.client.Close()
}
