package eventwatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// Common event kinds as reported in the "type" field of the events API.
const (
	KindPush         = "PushEvent"
	KindPullRequest  = "PullRequestEvent"
	KindIssues       = "IssuesEvent"
	KindIssueComment = "IssueCommentEvent"
	KindCreate       = "CreateEvent"
	KindDelete       = "DeleteEvent"
	KindRelease      = "ReleaseEvent"
	KindWatch        = "WatchEvent"
	KindFork         = "ForkEvent"
)

// Actor is the account that triggered an event.
type Actor struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// RepoRef identifies the repository an event belongs to.
type RepoRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Envelope is a single record from the events feed: a kind discriminator
// plus an opaque payload whose shape depends on the kind.
//
// Envelopes are built fresh from every response body and never mutated.
// Use [Envelope.Decode] or [DecodePayload] to read the payload as a typed
// struct; decoding can be repeated with different targets.
type Envelope struct {
	// ID is the feed-assigned event id. May be empty.
	ID string `json:"id,omitempty"`

	// Kind is the event type, e.g. "PushEvent". Compared by exact equality.
	Kind string `json:"type"`

	Actor     Actor     `json:"actor"`
	Repo      RepoRef   `json:"repo"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`

	// Payload is the raw JSON payload. It is never interpreted by the detector.
	Payload json.RawMessage `json:"payload"`
}

// UnmarshalJSON requires the "type" and "payload" fields to be present.
// The remaining fields are informational: a value of an unexpected shape
// leaves the field at its zero value instead of failing the envelope.
// The id may be a string or a number.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Kind      *string         `json:"type"`
		Actor     json.RawMessage `json:"actor"`
		Repo      json.RawMessage `json:"repo"`
		Public    json.RawMessage `json:"public"`
		CreatedAt json.RawMessage `json:"created_at"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Kind == nil {
		return errors.New("event is missing the type field")
	}
	if len(raw.Payload) == 0 {
		return errors.New("event is missing the payload field")
	}

	*e = Envelope{
		ID:        decodeID(raw.ID),
		Kind:      *raw.Kind,
		Actor:     decodeLenient[Actor](raw.Actor),
		Repo:      decodeLenient[RepoRef](raw.Repo),
		Public:    decodeLenient[bool](raw.Public),
		CreatedAt: decodeLenient[time.Time](raw.CreatedAt),
		Payload:   raw.Payload,
	}
	return nil
}

// decodeLenient unmarshals raw into a T, or returns the zero T if raw is
// absent or does not fit.
func decodeLenient[T any](raw json.RawMessage) T {
	var v T
	if len(raw) == 0 {
		return v
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero
	}
	return v
}

// decodeID accepts a string or numeric id.
func decodeID(raw json.RawMessage) string {
	if id := decodeLenient[string](raw); id != "" {
		return id
	}
	return decodeLenient[json.Number](raw).String()
}

// Decode unmarshals the payload into v, which must be a non-nil pointer.
//
// Decode has no side effects on the envelope. A null payload, a payload
// whose structure does not match v, or one missing a field v requires
// yields a *[DecodeError].
func (e Envelope) Decode(v any) error {
	target := typeName(v)

	trimmed := bytes.TrimSpace(e.Payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &DecodeError{Kind: e.Kind, Target: target, Err: errors.New("payload is empty")}
	}

	if err := json.Unmarshal(trimmed, v); err != nil {
		return &DecodeError{Kind: e.Kind, Target: target, Err: err}
	}
	return nil
}

// DecodePayload decodes the envelope's payload into a new T.
//
// Example:
//
//	push, err := eventwatch.DecodePayload[eventwatch.PushPayload](env)
//	if err != nil {
//	    // payload does not look like a push; skip it
//	}
func DecodePayload[T any](e Envelope) (T, error) {
	var out T
	if err := e.Decode(&out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// DecodeError reports a payload that could not be decoded into the
// requested shape. It only concerns that one decode attempt; the envelope
// itself stays valid.
type DecodeError struct {
	// Kind is the envelope kind whose payload failed to decode.
	Kind string

	// Target is the Go type the payload was decoded into.
	Target string

	// Err is the underlying JSON or validation error.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload into %s: %v", e.Kind, e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeEnvelopes decodes a response body holding a JSON array of events.
func DecodeEnvelopes(body []byte) ([]Envelope, error) {
	var batch []Envelope
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	if batch == nil {
		// a literal null is not an array
		return nil, errors.New("failed to decode events: body is not an array")
	}
	return batch, nil
}

// FilterKind returns the envelopes whose Kind equals kind, preserving their
// relative order. The result is never nil.
func FilterKind(batch []Envelope, kind string) []Envelope {
	out := make([]Envelope, 0, len(batch))
	for _, e := range batch {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// requireKeys checks that a JSON object carries every key in keys.
// Used by payload types to reject shapes that merely happen to parse.
func requireKeys(data []byte, keys ...string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return fmt.Errorf("missing field %q", k)
		}
	}
	return nil
}
