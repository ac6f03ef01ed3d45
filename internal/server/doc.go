// Package server provides the local HTTP surface for matched events.
//
// This package is internal to eventwatch and handles all HTTP concerns:
//
//   - REST API: JSON snapshots at "/api/events" and "/api/state"
//   - Server-Sent Events: live events at "/api/sse"
//   - WebSocket: live events at "/ws"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the eventwatch library should not need to interact with this
// package directly. The server is started by [eventwatch.Watcher.Start] when
// a port is configured.
package server
