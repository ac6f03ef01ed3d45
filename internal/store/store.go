package store

import (
	"encoding/json"
	"time"
)

// EventRecord is a matched event as stored and served over HTTP.
//
// It is decoupled from the root package's types so the server can encode
// it without importing the library.
type EventRecord struct {
	// Identity is the deduplication key, e.g. "push:123".
	Identity string `json:"identity"`

	// ID is the feed-assigned event id. May be empty.
	ID string `json:"id,omitempty"`

	// Kind is the event type, e.g. "PushEvent".
	Kind string `json:"kind"`

	// Repo is the "owner/repo" name reported by the feed.
	Repo string `json:"repo,omitempty"`

	// Actor is the login that triggered the event.
	Actor string `json:"actor,omitempty"`

	// CreatedAt is when the feed says the event happened.
	CreatedAt time.Time `json:"created_at"`

	// DetectedAt is when the poller delivered the event.
	DetectedAt time.Time `json:"detected_at"`

	// Payload is the raw event payload.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Store defines the interface for storing and subscribing to matched events.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Add stores a record and notifies all subscribers.
	// A record with an identity already present replaces it in place.
	Add(record EventRecord)

	// GetAll returns the stored records, oldest first.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []EventRecord

	// Subscribe returns a channel that receives new records.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan EventRecord

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan EventRecord)
}
