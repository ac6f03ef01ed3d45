package poller

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Schedule tracks when the next request may be issued and the interval the
// server last asked for.
//
// Schedule is not safe for concurrent use; the owner serializes access.
type Schedule struct {
	next     time.Time
	interval time.Duration
	floor    time.Duration
}

// NewSchedule creates a [Schedule] whose first request is eligible at start.
//
// interval is the cadence used until the server supplies a hint. floor is
// the smallest interval a hint may set; it must be positive. If interval is
// below floor it is raised to floor.
func NewSchedule(start time.Time, interval, floor time.Duration) *Schedule {
	if floor <= 0 {
		floor = time.Second
	}
	if interval < floor {
		interval = floor
	}
	return &Schedule{
		next:     start,
		interval: interval,
		floor:    floor,
	}
}

// Next returns the earliest instant the next request may be issued.
func (s *Schedule) Next() time.Time {
	return s.next
}

// Interval returns the current polling interval.
func (s *Schedule) Interval() time.Duration {
	return s.interval
}

// Defer pushes the next eligible time to now+d, regardless of the interval.
// Used for the pessimistic default set before a request goes out.
func (s *Schedule) Defer(now time.Time, d time.Duration) {
	s.next = now.Add(d)
}

// Advance sets the next eligible time to now plus the current interval.
func (s *Schedule) Advance(now time.Time) {
	s.next = now.Add(s.interval)
}

// ApplyHint updates the interval from a raw poll-interval header value in
// whole seconds. Empty, unparseable, zero and negative hints are ignored.
// Hints below the floor are raised to the floor.
//
// Reports the resulting interval and whether it changed.
func (s *Schedule) ApplyHint(raw string) (time.Duration, bool) {
	d, ok := ParseIntervalHint(raw)
	if !ok {
		return s.interval, false
	}
	if d < s.floor {
		d = s.floor
	}
	if d == s.interval {
		return s.interval, false
	}
	s.interval = d
	return d, true
}

// ParseIntervalHint parses a poll-interval header value in whole seconds.
// Returns false unless the value is a positive integer.
func ParseIntervalHint(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return 0, false
	}
	if secs > int64(maxHint/time.Second) {
		secs = int64(maxHint / time.Second)
	}
	return time.Duration(secs) * time.Second, true
}

// maxHint is the largest interval a hint can set.
const maxHint = 24 * time.Hour

// SleepUntil blocks until wall-clock time reaches t or ctx is done.
//
// The wait is computed once from the absolute instant, so a late wake-up
// never extends the following wait. Returns ctx.Err() if ctx ends first.
// A t in the past returns immediately, unless ctx is already done.
func SleepUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d := time.Until(t)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
