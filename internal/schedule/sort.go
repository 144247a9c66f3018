// Package schedule holds the pure event pipeline: sorting, facet
// extraction, filtering, date windowing and day grouping.
package schedule

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"latinevents/internal/model"
)

// collationTag is the locale used for every user-visible string ordering.
var collationTag = language.Make("de-CH")

// newCollator returns a fresh collator. Collators keep internal buffers and
// must not be shared between goroutines.
func newCollator() *collate.Collator {
	return collate.New(collationTag)
}

// DropUndated removes events without a parseable date.
func DropUndated(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.HasDate() {
			out = append(out, ev)
		}
	}
	return out
}

// Sort returns a copy of events ordered by date, then time, then name.
// Events without a parsed date go last. Equal keys keep input order.
func Sort(events []model.Event) []model.Event {
	out := slices.Clone(events)
	c := newCollator()
	slices.SortStableFunc(out, func(a, b model.Event) int {
		return compareEvents(c, a, b)
	})
	return out
}

func compareEvents(c *collate.Collator, a, b model.Event) int {
	switch {
	case a.ParsedDate == nil && b.ParsedDate == nil:
	case a.ParsedDate == nil:
		return 1
	case b.ParsedDate == nil:
		return -1
	default:
		if n := a.ParsedDate.Compare(*b.ParsedDate); n != 0 {
			return n
		}
	}
	if n := c.CompareString(a.Time, b.Time); n != 0 {
		return n
	}
	return c.CompareString(a.Name, b.Name)
}
