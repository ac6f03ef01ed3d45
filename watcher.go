package eventwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jpalmerr/eventwatch/internal/server"
	"github.com/jpalmerr/eventwatch/internal/store"
	"golang.org/x/sync/errgroup"
)

// MatchedEvent is a newly observed event of the watched kind.
type MatchedEvent struct {
	// ID is the feed-assigned event id.
	ID string `json:"id"`

	// Identity is the deduplication key, e.g. "push:123".
	Identity string `json:"identity"`

	Kind       string          `json:"kind"`
	Repo       string          `json:"repo"`
	Actor      string          `json:"actor"`
	CreatedAt  time.Time       `json:"created_at"`
	Payload    json.RawMessage `json:"payload"`
	DetectedAt time.Time       `json:"detected_at"`
}

// Watcher repeatedly waits for events of one kind on one repository and
// delivers each logical event once.
//
// Watcher wraps a [Detector] with a bounded set of seen identities, a
// bounded history, registered callbacks, and an optional HTTP server that
// streams matched events. It is created using [New] and run with
// [Watcher.Start]:
//
//	res, _ := eventwatch.ParseResource("lulf/go-vex")
//	w, err := eventwatch.New(res, eventwatch.WithToken(os.Getenv("GITHUB_TOKEN")))
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	w.Start(ctx) // blocks until context cancelled
type Watcher struct {
	detector  *Detector
	kind      string
	identity  IdentityFunc
	seen      *lru.Cache[string, struct{}]
	history   *store.MemoryStore
	callbacks []func(MatchedEvent)
	port      int
	logger    *slog.Logger
}

// New creates a [Watcher] for resource with the given options.
//
// Defaults:
//   - Kind: PushEvent, keyed by push id
//   - Interval: 300 seconds until the server hints otherwise
//   - Seen cache: 4096 identities
//   - History: 500 events
//   - No HTTP server
//
// Returns an error if resource is zero or any option is invalid.
func New(resource Resource, opts ...Option) (*Watcher, error) {
	cfg := &watchConfig{
		kind:          KindPush,
		seenCacheSize: DefaultSeenCacheSize,
		historySize:   DefaultHistorySize,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.detector.Logger = logger

	detector, err := NewDetector(resource, cfg.token, cfg.detector)
	if err != nil {
		return nil, err
	}

	seen, err := lru.New[string, struct{}](cfg.seenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}

	identity := cfg.identity
	if identity == nil {
		identity = DefaultIdentity(cfg.kind)
	}

	return &Watcher{
		detector:  detector,
		kind:      cfg.kind,
		identity:  identity,
		seen:      seen,
		history:   store.NewMemoryStore(cfg.historySize),
		callbacks: cfg.callbacks,
		port:      cfg.port,
		logger:    logger.With("resource", resource.String(), "kind", cfg.kind),
	}, nil
}

// Start polls until ctx is cancelled, delivering new events to the history
// and to registered callbacks. When a port is configured the event API is
// served for the same lifetime.
//
// Transport failures are logged and retried after the current interval.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server
// fails to bind or a *[StatusError] ends polling.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("watcher starting", "url", w.detector.URL())

	if ctx.Err() != nil {
		return nil
	}
	defer w.detector.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if w.port > 0 {
		state := func() any { return w.detector.State() }
		srv := server.NewServer(w.history, state, w.port, w.logger)
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		w.logger.Info("event api available", "url", fmt.Sprintf("http://localhost:%d/api/events", w.port))
		g.Go(func() error {
			<-srv.Done()
			return nil
		})
	}

	g.Go(func() error {
		return w.pollLoop(gctx)
	})

	err := g.Wait()
	w.logger.Info("watcher stopped")
	return err
}

func (w *Watcher) pollLoop(ctx context.Context) error {
	for {
		_, err := w.Poll(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			// the detector has already moved the next poll out by one interval
			continue
		}
		return err
	}
}

// Poll waits for the next batch of matching events and delivers those not
// seen before. It returns the delivered events in feed order.
//
// Poll errors are those of [Detector.WaitForEvents].
func (w *Watcher) Poll(ctx context.Context) ([]MatchedEvent, error) {
	batch, err := w.detector.WaitForEvents(ctx, w.kind)
	if err != nil {
		return nil, err
	}

	detectedAt := time.Now()
	delivered := make([]MatchedEvent, 0, len(batch))

	for _, env := range batch {
		identity, ok := w.identify(env)
		if !ok {
			continue
		}
		if seen, _ := w.seen.ContainsOrAdd(identity, struct{}{}); seen {
			w.logger.Debug("skipping already seen event", "identity", identity)
			continue
		}

		ev := MatchedEvent{
			ID:         env.ID,
			Identity:   identity,
			Kind:       env.Kind,
			Repo:       env.Repo.Name,
			Actor:      env.Actor.Login,
			CreatedAt:  env.CreatedAt,
			Payload:    copyBytes(env.Payload),
			DetectedAt: detectedAt,
		}
		w.deliver(ev)
		delivered = append(delivered, ev)
	}

	if len(batch) > 0 {
		w.logger.Info("events matched", "received", len(batch), "new", len(delivered))
	}
	return delivered, nil
}

// identify keys env with the configured identity function. When that
// fails the feed-assigned id is used instead; an event with neither is
// skipped, since it could not be recognised on a later page.
func (w *Watcher) identify(env Envelope) (string, bool) {
	identity, err := w.identity(env)
	if err == nil {
		return identity, true
	}
	if fallback, idErr := EnvelopeIdentity(env); idErr == nil {
		w.logger.Warn("cannot identify event, keying by event id",
			"event_id", env.ID,
			"error", err,
		)
		return fallback, true
	}
	w.logger.Warn("cannot identify event, skipping", "error", err)
	return "", false
}

// deliver records ev in the history, then runs callbacks.
func (w *Watcher) deliver(ev MatchedEvent) {
	w.history.Add(store.EventRecord{
		Identity:   ev.Identity,
		ID:         ev.ID,
		Kind:       ev.Kind,
		Repo:       ev.Repo,
		Actor:      ev.Actor,
		CreatedAt:  ev.CreatedAt,
		DetectedAt: ev.DetectedAt,
		Payload:    ev.Payload,
	})

	for _, cb := range w.callbacks {
		invokeCallbackSafe(cb, ev, w.logger)
	}
}

// Detector returns the underlying [Detector], e.g. for [Detector.State].
func (w *Watcher) Detector() *Detector {
	return w.detector
}

// Kind returns the watched event kind.
func (w *Watcher) Kind() string {
	return w.kind
}

// Port returns the configured HTTP port, 0 when the server is disabled.
func (w *Watcher) Port() int {
	return w.port
}

// Events returns the retained matched events, oldest first.
func (w *Watcher) Events() []MatchedEvent {
	records := w.history.GetAll()
	events := make([]MatchedEvent, len(records))
	for i, rec := range records {
		events[i] = MatchedEvent{
			ID:         rec.ID,
			Identity:   rec.Identity,
			Kind:       rec.Kind,
			Repo:       rec.Repo,
			Actor:      rec.Actor,
			CreatedAt:  rec.CreatedAt,
			Payload:    copyBytes(rec.Payload),
			DetectedAt: rec.DetectedAt,
		}
	}
	return events
}

// copyBytes returns a copy of the byte slice, or nil if input is nil.
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// invokeCallbackSafe calls an event callback with panic recovery.
// Panics are logged with a correlation id but do not propagate.
func invokeCallbackSafe(cb func(MatchedEvent), ev MatchedEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event callback panicked",
				"panic", r,
				"identity", ev.Identity,
				"correlation_id", uuid.NewString(),
			)
		}
	}()
	cb(ev)
}
