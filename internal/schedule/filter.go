package schedule

import (
	"slices"
	"time"

	"latinevents/internal/model"
)

// Labels that on their own mark an event as not being a social.
const (
	labelCourse   = "kurs"
	labelShopping = "shopping"
)

// ParseDate parses a YYYY-MM-DD string as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(model.DateLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Filter returns the events matching f, preserving order.
func Filter(events []model.Event, f model.Filters, loc *time.Location) []model.Event {
	var start *time.Time
	if t, ok := ParseDate(f.StartDate, loc); ok {
		start = &t
	}

	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if Matches(ev, f, start) {
			out = append(out, ev)
		}
	}
	return out
}

// Matches applies every filter clause to a single event. start is the
// already parsed lower date bound, nil when unbounded.
func Matches(ev model.Event, f model.Filters, start *time.Time) bool {
	if f.Region != model.All && ev.Region != f.Region {
		return false
	}
	if f.Style != model.All && !slices.Contains(ev.Styles, f.Style) {
		return false
	}
	switch f.Label {
	case model.All:
	case model.ExcludeCourseOnly:
		if onlyLabel(ev.Labels, labelCourse) || onlyLabel(ev.Labels, labelShopping) {
			return false
		}
	default:
		if !slices.Contains(ev.Labels, f.Label) {
			return false
		}
	}
	if start != nil && (ev.ParsedDate == nil || ev.ParsedDate.Before(*start)) {
		return false
	}
	return true
}

// onlyLabel reports whether labels is non-empty and every entry equals want.
func onlyLabel(labels []string, want string) bool {
	if len(labels) == 0 {
		return false
	}
	for _, l := range labels {
		if l != want {
			return false
		}
	}
	return true
}
