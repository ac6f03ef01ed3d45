// Package mockfeed serves a fake repository events feed for demos and
// tests.
//
// The feed behaves like the real endpoint where it matters to a poller:
// it answers conditional requests with 304, sends an ETag that changes
// whenever an event is added, and advertises a poll interval.
package mockfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/eventwatch"
)

// pageSize matches the events API's default page.
const pageSize = 30

// Feed is an in-memory events feed. It implements [http.Handler] for any
// path ending in "/events".
type Feed struct {
	repo         string
	pollInterval int
	logger       *slog.Logger

	mu       sync.Mutex
	events   []eventwatch.Envelope // newest first
	version  int
	nextID   int64
	requests int
	notMod   int
}

// New creates an empty feed for repo ("owner/name") that advertises
// pollInterval seconds. A non-positive pollInterval omits the header.
func New(repo string, pollInterval int, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		repo:         repo,
		pollInterval: pollInterval,
		logger:       logger,
		events:       []eventwatch.Envelope{},
		nextID:       1,
	}
}

// Push adds a push event by actor to ref and returns its push id.
func (f *Feed) Push(actor, ref string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pushID := f.nextID
	payload, err := json.Marshal(eventwatch.PushPayload{
		PushID:       pushID,
		Size:         1,
		DistinctSize: 1,
		Ref:          ref,
		Head:         fmt.Sprintf("%040x", pushID),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal push payload: %w", err)
	}
	f.addLocked(eventwatch.KindPush, actor, payload)
	return pushID, nil
}

// Add adds an event of any kind with the given payload.
func (f *Feed) Add(kind, actor string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.addLocked(kind, actor, raw)
	return nil
}

func (f *Feed) addLocked(kind, actor string, payload json.RawMessage) {
	id := f.nextID
	f.nextID++
	f.version++

	env := eventwatch.Envelope{
		ID:        strconv.FormatInt(id, 10),
		Kind:      kind,
		Actor:     eventwatch.Actor{ID: int64(len(actor)), Login: actor},
		Repo:      eventwatch.RepoRef{ID: 1, Name: f.repo},
		Public:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Payload:   payload,
	}
	f.events = append([]eventwatch.Envelope{env}, f.events...)
	if len(f.events) > pageSize {
		f.events = f.events[:pageSize]
	}
}

// Requests returns how many requests were served and how many of those
// were answered 304.
func (f *Feed) Requests() (total, notModified int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests, f.notMod
}

func (f *Feed) etagLocked() string {
	return fmt.Sprintf(`W/"%s-%d"`, strings.ReplaceAll(f.repo, "/", "-"), f.version)
}

// ServeHTTP serves the current page of events.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasSuffix(r.URL.Path, "/events") {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	f.requests++
	etag := f.etagLocked()
	notModified := r.Header.Get("If-None-Match") == etag
	if notModified {
		f.notMod++
	}
	body, err := json.Marshal(f.events)
	f.mu.Unlock()

	w.Header().Set("ETag", etag)
	if f.pollInterval > 0 {
		w.Header().Set("X-Poll-Interval", strconv.Itoa(f.pollInterval))
	}

	if notModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// RunRandomPushes adds a push at random gaps between minGap and maxGap
// until ctx is cancelled.
func (f *Feed) RunRandomPushes(ctx context.Context, minGap, maxGap time.Duration, actors ...string) {
	if len(actors) == 0 {
		actors = []string{"octocat"}
	}
	spread := int64(maxGap - minGap)

	for {
		gap := minGap
		if spread > 0 {
			gap += time.Duration(rand.Int63n(spread))
		}

		timer := time.NewTimer(gap)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		actor := actors[rand.Intn(len(actors))]
		pushID, err := f.Push(actor, "refs/heads/main")
		if err != nil {
			f.logger.Error("mock push failed", "repo", f.repo, "error", err)
			continue
		}
		f.logger.Info("mock push", "repo", f.repo, "actor", actor, "push_id", pushID)
	}
}
