package schedule

import (
	"time"

	"latinevents/internal/model"
)

// InitialSpanDays is the number of days shown before the first reveal and
// the increment applied by every reveal.
const InitialSpanDays = 14

// RevealState tracks how many days from the start date are exposed.
//
// States are the initial window (SpanDays == Step) and expanded windows
// (SpanDays == k*Step). Reset returns to the initial window; Expand moves
// one step further and only fires while more events remain hidden.
type RevealState struct {
	SpanDays int `json:"spanDays"`
	Step     int `json:"step"`
}

// NewRevealState returns the initial window for the given step. A
// non-positive step falls back to InitialSpanDays.
func NewRevealState(step int) RevealState {
	if step <= 0 {
		step = InitialSpanDays
	}
	return RevealState{SpanDays: step, Step: step}
}

// Reset returns to the initial window.
func (r *RevealState) Reset() {
	r.SpanDays = r.Step
}

// Expand widens the window by one step if hasMore holds and reports
// whether it did.
func (r *RevealState) Expand(hasMore bool) bool {
	if !hasMore {
		return false
	}
	r.SpanDays += r.Step
	return true
}

// WindowEnd returns the last visible day (inclusive) for a window of span
// days starting at startDate. ok is false when no window applies, i.e. the
// start date is empty or unparsable.
func WindowEnd(startDate string, span int, loc *time.Location) (end time.Time, ok bool) {
	start, ok := ParseDate(startDate, loc)
	if !ok {
		return time.Time{}, false
	}
	return start.AddDate(0, 0, span-1), true
}

// ApplyWindow keeps the events dated on or before end. Without a window
// every event is returned.
func ApplyWindow(events []model.Event, end time.Time, ok bool) []model.Event {
	if !ok {
		return events
	}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.ParsedDate != nil && !ev.ParsedDate.After(end) {
			out = append(out, ev)
		}
	}
	return out
}

// Page is the filtered and windowed result for one filter selection and
// reveal state.
type Page struct {
	Filtered  []model.Event
	Visible   []model.Event
	Groups    []model.DayGroup
	HasMore   bool
	WindowEnd *time.Time
}

// Paginate runs filter, window and grouping over sorted events.
func Paginate(events []model.Event, f model.Filters, span int, loc *time.Location) Page {
	filtered := Filter(events, f, loc)
	end, ok := WindowEnd(f.StartDate, span, loc)
	visible := ApplyWindow(filtered, end, ok)

	p := Page{
		Filtered: filtered,
		Visible:  visible,
		Groups:   GroupByDay(visible),
		HasMore:  len(visible) < len(filtered),
	}
	if ok {
		p.WindowEnd = &end
	}
	return p
}
