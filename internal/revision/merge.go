package revision

import (
	"sort"
	"strings"

	"briefsmith/internal/brief"
	"briefsmith/internal/registry"
	"briefsmith/internal/textutil"
)

// Change is one assertion flagged for replacement.
type Change struct {
	Original  string                      `json:"original"`
	Corrected string                      `json:"corrected"`
	Category  registry.CorrectionCategory `json:"category"`
	Note      string                      `json:"note,omitempty"`
	// Matched reports whether Original was found in the brief; Location is
	// the first brief field containing it.
	Matched  bool   `json:"matched"`
	Location string `json:"location,omitempty"`
}

// Request is the input handed to the revision generator.
type Request struct {
	Changes           []Change `json:"changes"`
	SelectedQuestions []string `json:"selectedQuestions,omitempty"`
}

// IsEmpty reports whether the request carries no changes.
func (r Request) IsEmpty() bool {
	return len(r.Changes) == 0
}

// Matched returns the changes that located their original text in the brief.
func (r Request) Matched() []Change {
	var out []Change
	for _, c := range r.Changes {
		if c.Matched {
			out = append(out, c)
		}
	}
	return out
}

type mergeKey struct {
	original  string
	corrected string
	category  registry.CorrectionCategory
}

type group struct {
	key    mergeKey
	change Change
	notes  []string
}

// Merge builds the revision request for b. An opt-out, or a correction set
// with nothing usable, yields the empty Request. Corrections are an
// unordered set: duplicates that differ only in case or spacing collapse to
// the lexically smallest wording, and their notes are joined in sorted order.
func Merge(b brief.Brief, corrections []registry.Correction, optedOut bool) Request {
	if optedOut || len(corrections) == 0 {
		return Request{}
	}

	groups := make(map[mergeKey]*group, len(corrections))
	for _, c := range corrections {
		original := textutil.CollapseSpace(c.Original)
		corrected := textutil.CollapseSpace(c.Corrected)
		if original == "" || corrected == "" {
			continue
		}
		category := c.Category
		if category == "" {
			category = registry.CategoryFactualError
		}
		key := mergeKey{original: textutil.Fold(original), corrected: textutil.Fold(corrected), category: category}
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, change: Change{Original: original, Corrected: corrected, Category: category}}
			groups[key] = g
		} else if original < g.change.Original || (original == g.change.Original && corrected < g.change.Corrected) {
			g.change.Original = original
			g.change.Corrected = corrected
		}
		if note := strings.TrimSpace(c.Note); note != "" {
			g.notes = append(g.notes, note)
		}
	}
	if len(groups) == 0 {
		return Request{}
	}

	merged := make([]*group, 0, len(groups))
	for _, g := range groups {
		merged = append(merged, g)
	}
	sort.Slice(merged, func(i, j int) bool {
		x, y := merged[i].key, merged[j].key
		if x.original != y.original {
			return x.original < y.original
		}
		if x.category != y.category {
			return x.category < y.category
		}
		return x.corrected < y.corrected
	})

	fields := b.Fields()
	changes := make([]Change, len(merged))
	for i, g := range merged {
		change := g.change
		change.Note = joinNotes(g.notes)
		for _, field := range fields {
			if textutil.ContainsFold(field.Text, change.Original) {
				change.Matched = true
				change.Location = field.Location
				break
			}
		}
		changes[i] = change
	}
	return Request{Changes: changes}
}

func joinNotes(notes []string) string {
	if len(notes) == 0 {
		return ""
	}
	sort.Strings(notes)
	out := notes[:1]
	for _, n := range notes[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return strings.Join(out, "; ")
}

// SelectQuestions keeps the IDs that name a question in b, once each, in
// brief order.
func SelectQuestions(b brief.Brief, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[strings.TrimSpace(id)] = struct{}{}
	}
	var out []string
	for _, id := range b.QuestionIDs() {
		if _, ok := wanted[id]; ok {
			out = append(out, id)
			delete(wanted, id)
		}
	}
	return out
}
