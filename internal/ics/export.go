// Package ics renders events as an iCalendar feed.
package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"latinevents/internal/model"
	"latinevents/internal/schedule"
)

const (
	productID = "-//latinevents//Event Schedule//DE"
	uidDomain = "latinevents"
)

// clockRe matches a clock time such as "21:00", "9.30" or "20:30 Uhr".
var clockRe = regexp.MustCompile(`(\d{1,2})[:.](\d{2})`)

// Options control the exported calendar.
type Options struct {
	// Name is the calendar display name.
	Name string
	// Location interprets dates and clock times.
	Location *time.Location
	// Now is written as DTSTAMP. Zero means time.Now.
	Now time.Time
}

// Export writes events as a VCALENDAR. Undated events are skipped. An
// event whose time field holds a clock time becomes a timed VEVENT (with
// an end when a second clock time follows); all others are all-day.
func Export(w io.Writer, events []model.Event, opts Options) error {
	if w == nil {
		return errors.New("ics: nil writer")
	}
	cal := Calendar(events, opts)
	return cal.SerializeTo(w)
}

// Calendar builds the calendar without serializing it.
func Calendar(events []model.Event, opts Options) *ical.Calendar {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetName(opts.Name)
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	for _, ev := range events {
		day, ok := eventDay(ev, loc)
		if !ok {
			continue
		}
		vev := cal.AddEvent(UID(ev))
		vev.SetDtStampTime(now)
		setTimes(vev, ev.Time, day)

		vev.SetSummary(ev.Name)
		if where := eventLocation(ev); where != "" {
			vev.SetLocation(where)
		}
		if ev.URL != "" {
			vev.SetURL(ev.URL)
		}
		if desc := description(ev); desc != "" {
			vev.SetDescription(desc)
		}
		for _, c := range categories(ev) {
			vev.AddCategory(c)
		}
	}
	return cal
}

// UID derives a stable identifier from the fields that identify an event
// in the feed, so re-exports update rather than duplicate calendar entries.
func UID(ev model.Event) string {
	h := sha256.New()
	for _, part := range []string{ev.Date, ev.Time, ev.Name, ev.URL} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:12]) + "@" + uidDomain
}

func eventDay(ev model.Event, loc *time.Location) (time.Time, bool) {
	if ev.ParsedDate != nil {
		return ev.ParsedDate.In(loc), true
	}
	return schedule.ParseDate(ev.Date, loc)
}

func setTimes(vev *ical.VEvent, raw string, day time.Time) {
	clocks := clockRe.FindAllStringSubmatch(raw, 2)
	start, ok := atClock(day, clocks, 0)
	if !ok {
		vev.SetAllDayStartAt(day)
		vev.SetAllDayEndAt(day.AddDate(0, 0, 1))
		return
	}
	vev.SetStartAt(start)
	if end, ok := atClock(day, clocks, 1); ok {
		// "22:00 - 03:00" ends on the next day.
		if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
		vev.SetEndAt(end)
	}
}

func atClock(day time.Time, clocks [][]string, i int) (time.Time, bool) {
	if i >= len(clocks) {
		return time.Time{}, false
	}
	h, _ := strconv.Atoi(clocks[i][1])
	m, _ := strconv.Atoi(clocks[i][2])
	if h > 23 || m > 59 {
		return time.Time{}, false
	}
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, day.Location()), true
}

func eventLocation(ev model.Event) string {
	parts := make([]string, 0, 2)
	if ev.Host != "" {
		parts = append(parts, ev.Host)
	}
	if ev.City != "" {
		parts = append(parts, ev.City)
	}
	return strings.Join(parts, ", ")
}

func description(ev model.Event) string {
	var lines []string
	if ev.Time != "" {
		lines = append(lines, "Zeit: "+ev.Time)
	}
	if ev.Region != "" {
		lines = append(lines, "Region: "+ev.Region)
	}
	if ev.FlyerURL != "" {
		lines = append(lines, "Flyer: "+ev.FlyerURL)
	}
	if ev.Source != "" {
		lines = append(lines, "Quelle: "+ev.Source)
	}
	return strings.Join(lines, "\n")
}

func categories(ev model.Event) []string {
	out := make([]string, 0, len(ev.Labels)+len(ev.Styles))
	out = append(out, ev.Labels...)
	for _, code := range ev.Styles {
		out = append(out, schedule.StyleLabel(code))
	}
	return out
}
