package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"latinevents/internal/model"
	"latinevents/internal/schedule"
)

// ErrMissingHeader is returned when the feed has no header row or the
// header lacks the date column.
var ErrMissingHeader = errors.New("feed: missing header row")

// Column names of the events feed.
const (
	colDate   = "date"
	colTime   = "time"
	colName   = "name"
	colFlyer  = "flyer"
	colURL    = "url"
	colHost   = "host"
	colCity   = "city"
	colRegion = "region"
	colSource = "source"
	colLabels = "labels"
	colStyle  = "style"
)

// multiValueSep separates values inside the labels and style cells.
const multiValueSep = "|"

// Parse reads the events CSV into normalized events.
//
// Columns are matched by header name; missing columns read as "". Rows with
// an empty date are skipped. A date that does not parse leaves ParsedDate
// nil; such rows are kept here and dropped by later stages.
func Parse(r io.Reader, loc *time.Location) ([]model.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("feed: read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	if _, ok := cols[colDate]; !ok {
		return nil, fmt.Errorf("%w: no %q column", ErrMissingHeader, colDate)
	}

	events := make([]model.Event, 0)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: read row: %w", err)
		}

		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}

		ev, ok := normalizeRow(get, loc)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// normalizeRow builds an event from one row; ok is false when the row has
// no date.
func normalizeRow(get func(string) string, loc *time.Location) (model.Event, bool) {
	date := get(colDate)
	if date == "" {
		return model.Event{}, false
	}

	ev := model.Event{
		Date:     date,
		Time:     get(colTime),
		Name:     get(colName),
		FlyerURL: get(colFlyer),
		URL:      get(colURL),
		Host:     get(colHost),
		City:     get(colCity),
		Region:   get(colRegion),
		Source:   get(colSource),
		Labels:   splitMulti(get(colLabels)),
		Styles:   splitMulti(get(colStyle)),
	}
	if t, ok := schedule.ParseDate(date, loc); ok {
		ev.ParsedDate = &t
	}
	return ev, true
}

// splitMulti splits a pipe-joined cell into trimmed, non-empty values.
func splitMulti(cell string) []string {
	out := make([]string, 0)
	if cell == "" {
		return out
	}
	for _, part := range strings.Split(cell, multiValueSep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
