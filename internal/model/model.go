package model

import "time"

// Filter sentinels.
const (
	// All disables the region, label or style clause.
	All = "all"
	// ExcludeCourseOnly hides events tagged only as courses or only as
	// shopping; mixed-tag events stay visible.
	ExcludeCourseOnly = "exclude-course-only"
)

// Filter field names accepted by session.SetFilter.
const (
	FieldRegion    = "region"
	FieldLabel     = "label"
	FieldStyle     = "style"
	FieldStartDate = "startDate"
)

// DateLayout is the calendar date format used by the feed and by filters.
const DateLayout = "2006-01-02"

// StyleNames maps dance-style codes from the feed to display names.
// Codes not listed here are shown raw.
var StyleNames = map[string]string{
	"S": "Salsa",
	"B": "Bachata",
	"K": "Kizomba",
	"Z": "Zouk",
}

// Event is one normalized row of the events feed.
type Event struct {
	// Date is the calendar date as found in the feed (YYYY-MM-DD).
	Date string `json:"date"`
	// ParsedDate is Date at local midnight in the display timezone, or nil
	// when Date could not be parsed.
	ParsedDate *time.Time `json:"-"`

	Time     string `json:"time"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	FlyerURL string `json:"flyer"`

	Labels []string `json:"labels"`
	Styles []string `json:"styles"`
}

// HasDate reports whether the event carries a usable calendar date.
func (e Event) HasDate() bool {
	return e.Date != "" && e.ParsedDate != nil
}

// Filters is the user-owned filter selection of a session.
type Filters struct {
	Region    string `json:"region"`
	Label     string `json:"label"`
	Style     string `json:"style"`
	StartDate string `json:"startDate"`
}

// DayGroup is a run of visible events sharing the same calendar date.
type DayGroup struct {
	Date   string  `json:"date"`
	Events []Event `json:"events"`
}

// StyleOption pairs a style code with its display label.
type StyleOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}
