package feed

import (
	"bytes"
	"context"
	"time"

	appLog "latinevents/internal/log"
	"latinevents/internal/metrics"
	"latinevents/internal/model"
	"latinevents/internal/schedule"
)

// Loader turns the remote feed into the sorted event set a session shows.
type Loader struct {
	fetcher *Fetcher
	url     string
	loc     *time.Location
	dedupe  bool
	metrics *metrics.Metrics
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	URL string
	// Location is the timezone feed dates are interpreted in.
	Location *time.Location
	// Dedupe drops same-day events with the same normalized name.
	Dedupe  bool
	Metrics *metrics.Metrics
}

// NewLoader creates a Loader reading through f.
func NewLoader(f *Fetcher, cfg LoaderConfig) *Loader {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Loader{
		fetcher: f,
		url:     cfg.URL,
		loc:     loc,
		dedupe:  cfg.Dedupe,
		metrics: cfg.Metrics,
	}
}

// Load fetches and parses the feed, drops undated rows, optionally
// deduplicates, and sorts.
func (l *Loader) Load(ctx context.Context, cacheBust string) ([]model.Event, error) {
	start := time.Now()

	body, err := l.fetcher.Fetch(ctx, l.url, cacheBust)
	if err != nil {
		l.metrics.ObserveFeedLoad(time.Since(start), 0, 0, err)
		return nil, err
	}

	parsed, err := Parse(bytes.NewReader(body), l.loc)
	if err != nil {
		l.metrics.ObserveFeedLoad(time.Since(start), 0, 0, err)
		return nil, err
	}

	events := schedule.DropUndated(parsed)
	if l.dedupe {
		events = schedule.Dedupe(events)
	}
	events = schedule.Sort(events)

	dropped := len(parsed) - len(events)
	l.metrics.ObserveFeedLoad(time.Since(start), len(events), dropped, nil)
	appLog.Debug("feed normalized", "rows", len(parsed), "events", len(events), "dropped", dropped)

	return events, nil
}
