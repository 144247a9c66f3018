package schedule

import "latinevents/internal/model"

// GroupByDay splits already sorted events into contiguous runs sharing the
// same Date string.
func GroupByDay(events []model.Event) []model.DayGroup {
	groups := make([]model.DayGroup, 0)
	for _, ev := range events {
		n := len(groups)
		if n == 0 || groups[n-1].Date != ev.Date {
			groups = append(groups, model.DayGroup{Date: ev.Date})
			n++
		}
		groups[n-1].Events = append(groups[n-1].Events, ev)
	}
	return groups
}
