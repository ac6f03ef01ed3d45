// Package poller provides the HTTP and timing primitives behind eventwatch's
// change detector.
//
// This package is internal to eventwatch. It has two parts:
//
//   - [Client]: HTTP client wrapper with per-request timeouts, size limits
//     and response headers captured for cache and rate-limit hints
//   - [Schedule]: next-eligible-time bookkeeping driven by server poll
//     interval hints, plus [SleepUntil] for waiting on an absolute instant
//
// Users of the eventwatch library should not need to interact with this
// package directly.
package poller
