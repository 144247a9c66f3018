package schedule

import (
	"time"

	"latinevents/internal/model"
)

var testLoc = time.UTC

// ev builds an event with ParsedDate derived from date the same way the
// feed parser does.
func ev(date, tm, name string) model.Event {
	e := model.Event{
		Date:   date,
		Time:   tm,
		Name:   name,
		Labels: []string{},
		Styles: []string{},
	}
	if t, ok := ParseDate(date, testLoc); ok {
		e.ParsedDate = &t
	}
	return e
}

func withLabels(e model.Event, labels ...string) model.Event {
	e.Labels = labels
	return e
}

func withStyles(e model.Event, styles ...string) model.Event {
	e.Styles = styles
	return e
}

func withRegion(e model.Event, region string) model.Event {
	e.Region = region
	return e
}

func allFilters() model.Filters {
	return model.Filters{Region: model.All, Label: model.All, Style: model.All}
}

func names(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Name)
	}
	return out
}
