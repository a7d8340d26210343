// Package nostr implements the signed, content-addressed event model
// that all published content on a servus site is made of: canonical
// serialization and Schnorr signature verification, tag accessors,
// the time-boxed authorization checks built on top of them, and the
// relay wire protocol (EVENT/REQ/CLOSE and their replies).
package nostr

import (
	"fmt"
	"time"
)

// Event kinds understood by the server. Kinds in [30000, 40000) are
// parameterized-replaceable: publishing a new event with the same
// (kind, d-tag) supersedes the previous one.
const (
	KindNote          = 1
	KindDelete        = 5
	KindBlossomAuth   = 24242
	KindRequestAuth   = 27235
	KindLongForm      = 30023
	KindLongFormDraft = 30024
	KindCustomData    = 30078
)

// Event is an immutable, signed, content-addressed message. ID must be
// the hex SHA-256 of the event's canonical serialization and Sig a
// 64-byte Schnorr signature over that digest, verifiable against
// PubKey. Events are never mutated after validation; a "change" is
// always a new event that replaces or deletes a prior one.
//
// Field order matters on the wire and is fixed.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Tag returns the second element of the first tag whose name (first
// element) matches. Lookup order is first match wins; tag order is
// otherwise irrelevant. Returns "" if no such tag exists.
func (ev *Event) Tag(name string) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// DTag returns the stable identifier used to key replaceable events.
func (ev *Event) DTag() string {
	return ev.Tag("d")
}

// IsParameterizedReplaceable reports whether the event's kind is in
// the parameterized-replaceable range.
func (ev *Event) IsParameterizedReplaceable() bool {
	return ev.Kind >= 30000 && ev.Kind < 40000
}

// IsLongForm reports whether the event is a long-form post or draft.
func (ev *Event) IsLongForm() bool {
	return ev.Kind == KindLongForm || ev.Kind == KindLongFormDraft
}

// PublishedAt returns the long-form publication time from the
// "published_at" tag, or nil if the event is not long-form, the tag is
// absent, or it does not parse as a Unix timestamp.
func (ev *Event) PublishedAt() *time.Time {
	if !ev.IsLongForm() {
		return nil
	}
	raw := ev.Tag("published_at")
	if raw == "" {
		return nil
	}
	var secs int64
	if _, err := fmt.Sscanf(raw, "%d", &secs); err != nil {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

// Summary returns the long-form "summary" tag, or "" for other kinds.
func (ev *Event) Summary() string {
	if !ev.IsLongForm() {
		return ""
	}
	return ev.Tag("summary")
}

// Date returns the event's display date: the publication time for
// long-form events that carry one, the creation time otherwise.
func (ev *Event) Date() time.Time {
	if at := ev.PublishedAt(); at != nil {
		return *at
	}
	return time.Unix(ev.CreatedAt, 0).UTC()
}

// ParseEvent rebuilds an event from a stored document's front matter
// and body. The body becomes the event content with trailing newlines
// trimmed (the document writer appends one). Returns nil if any
// required field is missing or has the wrong shape.
func ParseEvent(meta map[string]any, body string) *Event {
	id, ok := meta["id"].(string)
	if !ok || id == "" {
		return nil
	}
	pubkey, ok := meta["pubkey"].(string)
	if !ok || pubkey == "" {
		return nil
	}
	sig, ok := meta["sig"].(string)
	if !ok || sig == "" {
		return nil
	}
	createdAt, ok := asInt64(meta["created_at"])
	if !ok {
		return nil
	}
	kind, ok := asInt64(meta["kind"])
	if !ok {
		return nil
	}
	tags, ok := asTags(meta["tags"])
	if !ok {
		return nil
	}

	for len(body) > 0 && body[len(body)-1] == '\n' {
		body = body[:len(body)-1]
	}

	return &Event{
		ID:        id,
		PubKey:    pubkey,
		CreatedAt: createdAt,
		Kind:      int(kind),
		Tags:      tags,
		Content:   body,
		Sig:       sig,
	}
}

// DocumentMeta returns the front matter under which the event is
// persisted. The content is stored as the document body, not here.
func (ev *Event) DocumentMeta() map[string]any {
	return map[string]any{
		"id":         ev.ID,
		"pubkey":     ev.PubKey,
		"created_at": ev.CreatedAt,
		"kind":       ev.Kind,
		"tags":       ev.Tags,
		"sig":        ev.Sig,
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func asTags(v any) ([][]string, bool) {
	if v == nil {
		return [][]string{}, true
	}
	if tags, ok := v.([][]string); ok {
		return tags, true
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, false
	}
	tags := make([][]string, 0, len(seq))
	for _, entry := range seq {
		inner, ok := entry.([]any)
		if !ok {
			return nil, false
		}
		tag := make([]string, 0, len(inner))
		for _, t := range inner {
			s, ok := t.(string)
			if !ok {
				return nil, false
			}
			tag = append(tag, s)
		}
		tags = append(tags, tag)
	}
	return tags, true
}
