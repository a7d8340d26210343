// Package site implements the per-tenant resource catalog: the
// synchronization engine that turns a stream of accepted signed events
// (plus static files) into a map of servable resources, enforcing
// replace/delete semantics and persisting everything to the site's
// directory. The in-memory maps are a cache; the filesystem is the
// durable source of truth and the catalog can be rebuilt at any time
// by a full directory walk.
package site

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/servuscms/servus/internal/content"
	"github.com/servuscms/servus/internal/nostr"
)

// eventsDirName holds the stored events under a site's directory.
// Directory entries starting with "_" are never served as static files.
const eventsDirName = "_events"

// Site is one tenant: a domain, its configuration and data, and the
// catalog of stored events and derived resources. Both maps are
// guarded by a single coarse write lock so a reader never observes a
// state where one map reflects a change the other does not.
type Site struct {
	Domain string
	Path   string
	Config Config
	Data   map[string]any

	mu        sync.RWMutex
	events    map[string]*EventRecord
	resources map[string]*Resource
}

// NewSite returns an empty catalog for the site rooted at path. Call
// Rebuild to populate it from disk.
func NewSite(domain, path string, cfg Config) *Site {
	return &Site{
		Domain:    domain,
		Path:      path,
		Config:    cfg,
		Data:      map[string]any{},
		events:    map[string]*EventRecord{},
		resources: map[string]*Resource{},
	}
}

// Load reads a site's configuration, data files and stored content
// from its directory.
func Load(domain, path string) (*Site, error) {
	cfg, err := LoadConfig(filepath.Join(path, "_config.toml"))
	if err != nil {
		return nil, err
	}
	s := NewSite(domain, path, *cfg)
	s.loadData()
	if err := s.Rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

// Accept verifies, persists and indexes one published event. The file
// write and both map updates happen inside the write-lock critical
// section: a failed write leaves the catalog untouched, and a reader
// acquiring the lock afterwards sees a fully-updated state.
func (s *Site) Accept(ev *nostr.Event) error {
	if err := ev.Verify(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &EventRecord{ID: ev.ID, Kind: ev.Kind, DTag: ev.DTag()}
	if ev.IsParameterizedReplaceable() {
		// One file per (kind, d-tag-or-id): a later event with the
		// same key lands on the same path, superseding the old
		// content on disk.
		rec.Path = s.replaceablePath(ev.Kind, rec.replaceKey())
		if err := content.WriteDocumentFile(rec.Path, ev.DocumentMeta(), ev.Content); err != nil {
			return err
		}
	} else {
		path := filepath.Join(s.Path, eventsDirName, strconv.Itoa(ev.Kind)+".md")
		offset, err := content.AppendDocument(path, ev.DocumentMeta(), ev.Content)
		if err != nil {
			return err
		}
		rec.Path, rec.Offset = path, offset
	}

	s.index(rec, classify(ev))
	return nil
}

// Delete handles a deletion event. The target is resolved through a
// direct event-id reference ("e" tag) or a composite kind:pubkey:d-tag
// reference ("a" tag); the composite form is honored only when the
// embedded pubkey equals the deleter's. It reports whether anything
// was removed; deleting a nonexistent target is not an error.
func (s *Site) Delete(del *nostr.Event) (bool, error) {
	if del.Kind != nostr.KindDelete {
		return false, fmt.Errorf("%w: kind %d is not a deletion event", nostr.ErrInvalidEvent, del.Kind)
	}
	if err := del.Verify(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.resolveTargetLocked(del)
	if rec == nil {
		return false, nil
	}

	if err := s.removeFromDiskLocked(rec); err != nil {
		return false, err
	}
	s.dropResourceOfLocked(rec.ID)
	delete(s.events, rec.ID)
	log.Printf("Removed event %s (%s) from %s", rec.ID, rec.replaceKey(), s.Domain)
	return true, nil
}

// Rebuild repopulates the catalog from disk: every stored event
// document is re-derived exactly as Accept would derive it, without
// re-persisting, and static pages are scanned afresh. Unparsable
// documents are skipped with a diagnostic, never fatal.
func (s *Site) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = map[string]*EventRecord{}
	s.resources = map[string]*Resource{}

	if err := s.scanEventsLocked(); err != nil {
		return err
	}
	s.scanStaticLocked()
	return nil
}

// Resource returns the resource currently served at url.
func (s *Site) Resource(url string) (*Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[url]
	return r, ok
}

// Resources returns a snapshot of the URL-to-resource map, for
// sitemap and feed generation.
func (s *Site) Resources() map[string]*Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]*Resource, len(s.resources))
	for url, r := range s.resources {
		snapshot[url] = r
	}
	return snapshot
}

// Event returns a copy of the index entry for the given event id.
func (s *Site) Event(id string) (EventRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.events[id]; ok {
		return *rec, true
	}
	return EventRecord{}, false
}

// EventCount returns the number of stored events.
func (s *Site) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// ReadEvent loads a stored event back from its storage location.
func (s *Site) ReadEvent(id string) (*nostr.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("site: no stored event %s", id)
	}
	return s.readEventLocked(rec)
}

// StoredEvents returns all stored events matching any of the filters,
// newest first. When every filter carries a limit, the result is
// capped at the largest one.
func (s *Site) StoredEvents(filters []nostr.Filter) ([]*nostr.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*nostr.Event
	for _, rec := range s.events {
		ev, err := s.readEventLocked(rec)
		if err != nil {
			return nil, err
		}
		if nostr.MatchesAny(filters, ev) {
			matched = append(matched, ev)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt > matched[j].CreatedAt
	})

	if limit := maxLimit(filters); limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ResourceBody returns the raw (un-rendered) content behind a
// resource: the stored event's content, or the static file's body.
func (s *Site) ResourceBody(r *Resource) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r.EventID != "" {
		rec, ok := s.events[r.EventID]
		if !ok {
			return "", fmt.Errorf("site: resource %s refers to missing event %s", r.Slug, r.EventID)
		}
		ev, err := s.readEventLocked(rec)
		if err != nil {
			return "", err
		}
		return ev.Content, nil
	}

	doc, err := content.ReadDocumentFile(r.FilePath)
	if err != nil {
		return "", err
	}
	return doc.Body, nil
}

// --- internals (callers hold mu as noted) ---

// index enforces replace exclusivity (at most one record per
// (kind, d-tag) pair) and then inserts the record and its resource.
// Removal of the superseded record and insertion of the new one happen
// under one lock acquisition; splitting them would let a reader
// observe zero or two entries for the same key. Callers hold mu.
func (s *Site) index(rec *EventRecord, res *Resource) {
	if rec.Kind >= 30000 && rec.Kind < 40000 {
		for id, old := range s.events {
			if id != rec.ID && old.Kind == rec.Kind && old.replaceKey() == rec.replaceKey() {
				s.dropResourceOfLocked(id)
				delete(s.events, id)
			}
		}
	}
	s.events[rec.ID] = rec
	if res != nil {
		s.resources[res.URL(&s.Config)] = res
	}
}

func (s *Site) dropResourceOfLocked(eventID string) {
	for url, r := range s.resources {
		if r.EventID == eventID {
			delete(s.resources, url)
		}
	}
}

func (s *Site) readEventLocked(rec *EventRecord) (*nostr.Event, error) {
	doc, err := content.ReadDocumentAt(rec.Path, rec.Offset)
	if err != nil {
		return nil, err
	}
	ev := nostr.ParseEvent(doc.Meta, doc.Body)
	if ev == nil {
		return nil, fmt.Errorf("%w: %s@%d is not an event document", content.ErrMalformedDocument, rec.Path, rec.Offset)
	}
	return ev, nil
}

func (s *Site) replaceablePath(kind int, key string) string {
	return filepath.Join(s.Path, eventsDirName, strconv.Itoa(kind), sanitizeSlug(key)+".md")
}

func (s *Site) resolveTargetLocked(del *nostr.Event) *EventRecord {
	for _, tag := range del.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "e":
			if rec, ok := s.events[tag[1]]; ok {
				return rec
			}
		case "a":
			parts := strings.SplitN(tag[1], ":", 3)
			if len(parts) != 3 {
				continue
			}
			if parts[1] != del.PubKey {
				// An actor may only delete their own events.
				log.Printf("Ignoring deletion of %s: signer is not the author", tag[1])
				continue
			}
			kind, err := strconv.Atoi(parts[0])
			if err != nil {
				continue
			}
			for _, rec := range s.events {
				if rec.Kind == kind && rec.replaceKey() == parts[2] {
					return rec
				}
			}
		}
	}
	return nil
}

// removeFromDiskLocked deletes the record's backing document. A file
// holding only this record is removed outright; a shared
// multi-document file is rewritten without the deleted document and
// the surviving records' offsets are refreshed.
func (s *Site) removeFromDiskLocked(target *EventRecord) error {
	var survivors []*EventRecord
	for _, rec := range s.events {
		if rec.ID != target.ID && rec.Path == target.Path {
			survivors = append(survivors, rec)
		}
	}

	if len(survivors) == 0 {
		if err := os.Remove(target.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("site: remove %s: %w", target.Path, err)
		}
		return nil
	}

	sort.Slice(survivors, func(i, j int) bool { return survivors[i].Offset < survivors[j].Offset })
	docs := make([]*content.Document, len(survivors))
	for i, rec := range survivors {
		doc, err := content.ReadDocumentAt(rec.Path, rec.Offset)
		if err != nil {
			return err
		}
		docs[i] = doc
	}

	tmp := target.Path + ".tmp"
	_ = os.Remove(tmp)
	offsets := make([]int64, len(docs))
	for i, doc := range docs {
		offset, err := content.AppendDocument(tmp, doc.Meta, doc.Body)
		if err != nil {
			_ = os.Remove(tmp)
			return err
		}
		offsets[i] = offset
	}
	if err := os.Rename(tmp, target.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("site: rewrite %s: %w", target.Path, err)
	}
	for i, rec := range survivors {
		rec.Offset = offsets[i]
	}
	return nil
}

func (s *Site) scanEventsLocked() error {
	root := filepath.Join(s.Path, eventsDirName)
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("site: open %s: %w", path, err)
		}
		defer f.Close()

		r := content.NewReader(f)
		for {
			doc, offset, err := r.Next()
			if err != nil {
				log.Printf("Skipping %s: %v", path, err)
				return nil
			}
			if doc == nil {
				return nil
			}
			ev := nostr.ParseEvent(doc.Meta, doc.Body)
			if ev == nil {
				log.Printf("Skipping document %s@%d: not an event", path, offset)
				continue
			}
			rec := &EventRecord{ID: ev.ID, Kind: ev.Kind, DTag: ev.DTag(), Path: path, Offset: offset}
			s.index(rec, classify(ev))
		}
	})
}

// scanStaticLocked adds Page resources for the site's static .md and
// .html files. Files and directories whose names start with "_" or "."
// are skipped, as is anything without a front matter block.
func (s *Site) scanStaticLocked() {
	err := filepath.WalkDir(s.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != s.Path && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(name)
		if ext != ".md" && ext != ".html" {
			return nil
		}

		doc, err := content.ReadDocumentFile(path)
		if err != nil {
			log.Printf("Skipping static page %s: %v", path, err)
			return nil
		}

		rel, err := filepath.Rel(s.Path, path)
		if err != nil {
			return nil
		}
		slug := strings.TrimSuffix(filepath.ToSlash(rel), ext)

		res := &Resource{
			Kind:     ResourcePage,
			Slug:     slug,
			FilePath: path,
		}
		if title, ok := doc.Meta["title"].(string); ok {
			res.Title = title
		}

		url := "/" + slug
		if permalink, ok := doc.Meta["permalink"].(string); ok && permalink != "" {
			url = strings.TrimSuffix(permalink, "/")
		}
		s.resources[url] = res
		return nil
	})
	if err != nil {
		log.Printf("Static scan for %s: %v", s.Domain, err)
	}
}

// loadData reads the optional _data/*.yml files into Site.Data, keyed
// by file stem.
func (s *Site) loadData() {
	entries, err := os.ReadDir(filepath.Join(s.Path, "_data"))
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		doc, err := os.ReadFile(filepath.Join(s.Path, "_data", name))
		if err != nil {
			log.Printf("Skipping data file %s: %v", name, err)
			continue
		}
		var value any
		if err := yaml.Unmarshal(doc, &value); err != nil {
			log.Printf("Skipping data file %s: %v", name, err)
			continue
		}
		s.Data[strings.TrimSuffix(name, ext)] = value
	}
}

func maxLimit(filters []nostr.Filter) int {
	limit := 0
	for i := range filters {
		if filters[i].Limit == 0 {
			return 0 // at least one filter wants everything
		}
		if filters[i].Limit > limit {
			limit = filters[i].Limit
		}
	}
	return limit
}

// sanitizeSlug keeps d-tag-derived file names inside the events
// directory: path separators and anything exotic become dashes.
func sanitizeSlug(key string) string {
	var sb strings.Builder
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			sb.WriteRune(c)
		default:
			sb.WriteByte('-')
		}
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}
