package nostr

import "strings"

// Filter is a single subscription constraint set. A stored event
// matches iff every present constraint matches; a filter with no
// constraints matches everything.
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Matches reports whether the event satisfies every constraint the
// filter carries. ID and author matching are prefix matching; the time
// window is since <= created_at < until.
func (f *Filter) Matches(ev *Event) bool {
	return f.matchesID(ev.ID) && f.matchesAuthor(ev.PubKey) && f.matchesKind(ev.Kind) && f.matchesTime(ev.CreatedAt)
}

func (f *Filter) matchesID(id string) bool {
	if len(f.IDs) == 0 {
		return true
	}
	for _, prefix := range f.IDs {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

func (f *Filter) matchesAuthor(author string) bool {
	if len(f.Authors) == 0 {
		return true
	}
	for _, prefix := range f.Authors {
		if strings.HasPrefix(author, prefix) {
			return true
		}
	}
	return false
}

func (f *Filter) matchesKind(kind int) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (f *Filter) matchesTime(ts int64) bool {
	if f.Since != nil && ts < *f.Since {
		return false
	}
	if f.Until != nil && ts >= *f.Until {
		return false
	}
	return true
}

// MatchesAny reports whether any filter in the set matches the event.
func MatchesAny(filters []Filter, ev *Event) bool {
	for i := range filters {
		if filters[i].Matches(ev) {
			return true
		}
	}
	return false
}
