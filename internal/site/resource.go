package site

import (
	"time"

	"github.com/servuscms/servus/internal/nostr"
)

// ResourceKind classifies a servable resource.
type ResourceKind int

const (
	ResourcePost ResourceKind = iota
	ResourcePage
	ResourceNote
)

func (k ResourceKind) String() string {
	switch k {
	case ResourcePost:
		return "post"
	case ResourcePage:
		return "page"
	case ResourceNote:
		return "note"
	}
	return "unknown"
}

// EventRecord is the catalog's index entry for one stored event. The
// storage location is a (file path, byte offset) pair: reads reopen
// and seek, so records are plain data, safe to copy across goroutines.
type EventRecord struct {
	ID     string
	Kind   int
	DTag   string
	Path   string
	Offset int64
}

// replaceKey identifies the logical "latest version" slot within a
// kind. Events without a d tag fall back to their own id, meaning they
// are never actually replaced; this mirrors the upstream behavior and
// is kept deliberately.
func (r *EventRecord) replaceKey() string {
	if r.DTag != "" {
		return r.DTag
	}
	return r.ID
}

// Resource is a derived, servable view over an event or a static
// file. At most one Resource exists per resolvable URL at any time.
type Resource struct {
	Kind  ResourceKind
	Slug  string
	Title string
	Date  time.Time

	// Content source: exactly one of the two is set.
	EventID  string
	FilePath string
}

// URL computes the resource's resolvable URL under the site config.
func (r *Resource) URL(cfg *Config) string {
	switch r.Kind {
	case ResourcePost:
		return cfg.PostURL(r.Slug)
	case ResourceNote:
		return "/notes/" + r.Slug
	default:
		return "/" + r.Slug
	}
}

// classify derives the resource view for an accepted event: long-form
// events with a publication timestamp become posts, without one pages;
// plain notes become notes. Drafts and unrecognized kinds are stored
// but produce no resource (deletion events are not resources either).
func classify(ev *nostr.Event) *Resource {
	switch ev.Kind {
	case nostr.KindLongForm:
		slug := ev.DTag()
		if slug == "" {
			slug = ev.ID
		}
		kind := ResourcePage
		if ev.PublishedAt() != nil {
			kind = ResourcePost
		}
		return &Resource{
			Kind:    kind,
			Slug:    slug,
			Title:   ev.Tag("title"),
			Date:    ev.Date(),
			EventID: ev.ID,
		}
	case nostr.KindNote:
		return &Resource{
			Kind:    ResourceNote,
			Slug:    ev.ID,
			Date:    ev.Date(),
			EventID: ev.ID,
		}
	}
	return nil
}
