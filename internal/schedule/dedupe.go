package schedule

import (
	"regexp"
	"strings"

	"latinevents/internal/model"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeName lowercases a name and collapses everything that is not a
// plain letter or digit into single spaces.
func normalizeName(name string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(name), " "))
}

// Dedupe drops events whose date and normalized name match an earlier
// event. Events without a name are never considered duplicates.
func Dedupe(events []model.Event) []model.Event {
	type key struct{ date, name string }

	seen := make(map[key]struct{}, len(events))
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		name := normalizeName(ev.Name)
		if name == "" {
			out = append(out, ev)
			continue
		}
		k := key{date: ev.Date, name: name}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}
	return out
}
