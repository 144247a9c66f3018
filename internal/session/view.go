package session

import "latinevents/internal/model"

// View is the read-only view-model handed to the presentation layer.
type View struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error"`

	Regions []string            `json:"regions"`
	Labels  []string            `json:"labels"`
	Styles  []model.StyleOption `json:"styles"`

	Filters model.Filters `json:"filters"`

	VisibleEvents []model.Event    `json:"visibleEvents"`
	GroupedEvents []model.DayGroup `json:"groupedEvents"`
	HasMoreEvents bool             `json:"hasMoreEvents"`

	TotalCount    int `json:"totalCount"`
	FilteredCount int `json:"filteredCount"`
	VisibleCount  int `json:"visibleCount"`

	SpanDays  int    `json:"spanDays"`
	WindowEnd string `json:"windowEnd,omitempty"`

	Panel PanelView `json:"panel"`
}
