package nostr

import "testing"

func int64p(v int64) *int64 { return &v }

func TestFilterMatches(t *testing.T) {
	t.Parallel()

	ev := &Event{
		ID:        "aa11bb",
		PubKey:    "deadbeef",
		CreatedAt: 1000,
		Kind:      KindLongForm,
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches all", Filter{}, true},
		{"id prefix", Filter{IDs: []string{"aa1"}}, true},
		{"id miss", Filter{IDs: []string{"bb"}}, false},
		{"author prefix", Filter{Authors: []string{"dead"}}, true},
		{"author miss", Filter{Authors: []string{"beef"}}, false},
		{"kind member", Filter{Kinds: []int{KindNote, KindLongForm}}, true},
		{"kind miss", Filter{Kinds: []int{KindNote}}, false},
		{"since inclusive", Filter{Since: int64p(1000)}, true},
		{"since excludes older", Filter{Since: int64p(1001)}, false},
		{"until exclusive", Filter{Until: int64p(1000)}, false},
		{"until includes newer bound", Filter{Until: int64p(1001)}, true},
		{"window", Filter{Since: int64p(999), Until: int64p(1001)}, true},
		{"all constraints", Filter{Authors: []string{"de"}, Kinds: []int{KindLongForm}, Since: int64p(1)}, true},
		{"one constraint fails", Filter{Authors: []string{"de"}, Kinds: []int{KindNote}}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.filter.Matches(ev); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesAny(t *testing.T) {
	t.Parallel()

	ev := &Event{PubKey: "deadbeef", CreatedAt: 1000, Kind: KindNote}

	if MatchesAny(nil, ev) {
		t.Error("no filters should match nothing")
	}
	filters := []Filter{
		{Kinds: []int{KindLongForm}},
		{Authors: []string{"dead"}},
	}
	if !MatchesAny(filters, ev) {
		t.Error("second filter should match")
	}
}
