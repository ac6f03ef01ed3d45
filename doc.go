// Package eventwatch detects new activity on a GitHub repository by polling
// its public events feed.
//
// The feed is polled politely: each request carries the last ETag so an
// unchanged feed costs a 304, the server's X-Poll-Interval hint sets the
// cadence, and a failed request pushes the next attempt out by one interval
// instead of retrying hot.
//
// # Quick Start
//
// Watch pushes to a repository and print each one once:
//
//	res, _ := eventwatch.ParseResource("lulf/go-vex")
//	w, _ := eventwatch.New(res,
//	    eventwatch.WithToken(os.Getenv("GITHUB_TOKEN")),
//	    eventwatch.WithEventCallback(func(ev eventwatch.MatchedEvent) {
//	        fmt.Println(ev.Identity, ev.Actor)
//	    }),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	w.Start(ctx) // blocks until context is cancelled
//
// # Detector
//
// [Detector] is the lower-level building block. [Detector.WaitForEvents]
// blocks until the feed changes and returns the events of one kind:
//
//	d, _ := eventwatch.NewDetector(res, token, eventwatch.DetectorConfig{})
//	batch, err := d.WaitForEvents(ctx, eventwatch.KindPush)
//	for _, env := range batch {
//	    push, err := eventwatch.DecodePayload[eventwatch.PushPayload](env)
//	    ...
//	}
//
// A batch can repeat events from earlier batches, since the feed is a page
// of recent activity rather than a cursor. [Watcher] removes those repeats
// using an [IdentityFunc].
//
// # Architecture
//
//   - internal/poller: HTTP client, poll schedule, context-aware sleep
//   - internal/store: bounded in-memory event history with pub/sub
//   - internal/server: HTTP API with Server-Sent Events and WebSocket streams
//   - config: YAML configuration for the eventwatch command
package eventwatch
