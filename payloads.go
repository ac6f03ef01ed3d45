package eventwatch

import (
	"encoding/json"
	"errors"
	"strconv"
)

// PushPayload is the payload of a [KindPush] event.
//
// PushID identifies the push and is what callers deduplicate on; the same
// push can show up on several consecutive pages of the feed.
type PushPayload struct {
	PushID       int64  `json:"push_id"`
	Size         int    `json:"size"`
	DistinctSize int    `json:"distinct_size"`
	Ref          string `json:"ref"`
	Head         string `json:"head"`
	Before       string `json:"before"`
}

// UnmarshalJSON rejects payloads without a push_id.
func (p *PushPayload) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "push_id"); err != nil {
		return err
	}
	type plain PushPayload
	return json.Unmarshal(data, (*plain)(p))
}

// PullRequestPayload is the payload of a [KindPullRequest] event.
type PullRequestPayload struct {
	Action string `json:"action"`
	Number int    `json:"number"`
}

// UnmarshalJSON rejects payloads without an action or number.
func (p *PullRequestPayload) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "action", "number"); err != nil {
		return err
	}
	type plain PullRequestPayload
	return json.Unmarshal(data, (*plain)(p))
}

// IssuesPayload is the payload of a [KindIssues] event.
type IssuesPayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
	} `json:"issue"`
}

// CreatePayload is the payload of a [KindCreate] or [KindDelete] event.
type CreatePayload struct {
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"`
}

// ReleasePayload is the payload of a [KindRelease] event.
type ReleasePayload struct {
	Action  string `json:"action"`
	Release struct {
		TagName string `json:"tag_name"`
		Name    string `json:"name"`
	} `json:"release"`
}

// IdentityFunc derives a deduplication key from an envelope.
//
// Two envelopes with the same identity are the same logical event, even if
// they arrive in different poll cycles.
type IdentityFunc func(Envelope) (string, error)

// PushIdentity keys push events by their push id.
var PushIdentity IdentityFunc = func(e Envelope) (string, error) {
	push, err := DecodePayload[PushPayload](e)
	if err != nil {
		return "", err
	}
	return "push:" + strconv.FormatInt(push.PushID, 10), nil
}

// EnvelopeIdentity keys events by the feed-assigned event id.
var EnvelopeIdentity IdentityFunc = func(e Envelope) (string, error) {
	if e.ID == "" {
		return "", errors.New("event has no id")
	}
	return "event:" + e.ID, nil
}

// DefaultIdentity returns the identity function used for kind when none
// is configured: [PushIdentity] for push events, [EnvelopeIdentity] for
// everything else.
func DefaultIdentity(kind string) IdentityFunc {
	if kind == KindPush {
		return PushIdentity
	}
	return EnvelopeIdentity
}
