package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "latinevents/internal/log"
	"latinevents/internal/model"
	"latinevents/internal/schedule"
)

var (
	// ErrUnknownField is returned by SetFilter for a field name that is not
	// part of the filter selection.
	ErrUnknownField = errors.New("session: unknown filter field")
	// ErrNotFound is returned by the registry for unknown session ids.
	ErrNotFound = errors.New("session: not found")
)

// LoadErrorMessage is the user-visible message shown when the feed could
// not be loaded. The underlying error is only logged.
const LoadErrorMessage = "Die Eventdaten konnten nicht geladen werden."

// Source produces the sorted, normalized event set.
type Source interface {
	Load(ctx context.Context, cacheBust string) ([]model.Event, error)
}

// Options configure new sessions.
type Options struct {
	// Location is the timezone for "today" and for date parsing.
	Location *time.Location
	// Defaults is the initial filter selection. StartDate is ignored and
	// replaced by today's date.
	Defaults model.Filters
	// WindowDays is the initial reveal window and reveal step.
	WindowDays int
	// Now overrides the clock; tests use it.
	Now func() time.Time
}

// ReloadOptions control a single reload.
type ReloadOptions struct {
	CacheBust string `json:"cacheBust,omitempty"`
	// Silent keeps the loading indicator off, for background refreshes.
	Silent bool `json:"silent,omitempty"`
}

// Session is the state of one browser: the loaded events, the user's
// filters, the reveal window and the filter panel. All methods are safe
// for concurrent use.
type Session struct {
	id  string
	src Source
	loc *time.Location
	now func() time.Time

	mu         sync.Mutex
	events     []model.Event
	generation uint64
	loading    bool
	errMsg     string
	reloadSeq  uint64
	filters    model.Filters
	reveal     schedule.RevealState
	panel      Panel
	lastSeen   time.Time

	// memoized derivations
	facetsGen uint64
	facets    *schedule.Facets
	pageKey   pageKey
	page      *schedule.Page
}

// pageKey identifies every input a Page is derived from.
type pageKey struct {
	generation uint64
	filters    model.Filters
	span       int
}

// New creates a session in the loading state. Call Reload to fill it.
func New(id string, src Source, opts Options) *Session {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		id:       id,
		src:      src,
		loc:      loc,
		now:      now,
		loading:  true,
		filters:  initialFilters(opts.Defaults, now().In(loc)),
		reveal:   schedule.NewRevealState(opts.WindowDays),
		panel:    newPanel(),
		lastSeen: now(),
	}
	return s
}

func initialFilters(d model.Filters, today time.Time) model.Filters {
	f := model.Filters{
		Region:    d.Region,
		Label:     d.Label,
		Style:     d.Style,
		StartDate: today.Format(model.DateLayout),
	}
	if f.Region == "" {
		f.Region = model.All
	}
	if f.Label == "" {
		f.Label = model.All
	}
	if f.Style == "" {
		f.Style = model.All
	}
	return f
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Reload fetches the feed again and replaces the event set.
//
// Overlapping reloads are resolved by request order: the result of a
// reload that was superseded by a later call is discarded, whatever order
// they complete in. On failure the previous events are dropped and the
// session shows LoadErrorMessage until a later reload succeeds.
func (s *Session) Reload(ctx context.Context, opts ReloadOptions) error {
	seq := s.beginReload(opts.Silent)
	events, err := s.src.Load(ctx, opts.CacheBust)
	s.finishReload(seq, events, err)
	return err
}

func (s *Session) beginReload(silent bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reloadSeq++
	if !silent {
		s.loading = true
	}
	s.errMsg = ""
	return s.reloadSeq
}

// finishReload applies a load result if seq is still the latest reload.
// events is shared read-only between sessions and must not be modified.
func (s *Session) finishReload(seq uint64, events []model.Event, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.reloadSeq {
		appLog.Debug("discarding superseded reload", "session", s.id, "seq", seq, "latest", s.reloadSeq)
		return
	}

	s.loading = false
	s.generation++
	if err != nil {
		appLog.Error("event feed load failed", err, "session", s.id)
		s.events = nil
		s.errMsg = LoadErrorMessage
		return
	}
	s.events = events
}

// SetFilter changes one filter field. Setting a field to its current value
// is a no-op; any actual change returns the reveal window to its initial
// size.
func (s *Session) SetFilter(field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *string
	switch field {
	case model.FieldRegion:
		target = &s.filters.Region
	case model.FieldLabel:
		target = &s.filters.Label
	case model.FieldStyle:
		target = &s.filters.Style
	case model.FieldStartDate:
		target = &s.filters.StartDate
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	if *target == value {
		return nil
	}
	*target = value
	s.reveal.Reset()
	return nil
}

// Filters returns the current filter selection.
func (s *Session) Filters() model.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// RequestMore is the reveal trigger: it widens the window by one step when
// filtered events remain hidden, and reports whether it did.
func (s *Session) RequestMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reveal.Expand(s.currentPage().HasMore)
}

// View returns the derived, read-only view-model.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	facets := s.currentFacets()
	page := s.currentPage()

	v := View{
		Loading:       s.loading,
		Error:         s.errMsg,
		Regions:       facets.Regions,
		Labels:        facets.Labels,
		Styles:        facets.Styles,
		Filters:       s.filters,
		VisibleEvents: page.Visible,
		GroupedEvents: page.Groups,
		HasMoreEvents: page.HasMore,
		TotalCount:    len(s.events),
		FilteredCount: len(page.Filtered),
		VisibleCount:  len(page.Visible),
		SpanDays:      s.reveal.SpanDays,
		Panel:         s.panel.view(),
	}
	if page.WindowEnd != nil {
		v.WindowEnd = page.WindowEnd.Format(model.DateLayout)
	}
	return v
}

// VisibleEvents returns the events inside the current window.
func (s *Session) VisibleEvents() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPage().Visible
}

// currentFacets returns the facets of the current event set. Callers hold mu.
func (s *Session) currentFacets() *schedule.Facets {
	if s.facets == nil || s.facetsGen != s.generation {
		f := schedule.ExtractFacets(s.events)
		s.facets = &f
		s.facetsGen = s.generation
	}
	return s.facets
}

// currentPage returns the filtered and windowed events. Callers hold mu.
func (s *Session) currentPage() *schedule.Page {
	key := pageKey{generation: s.generation, filters: s.filters, span: s.reveal.SpanDays}
	if s.page == nil || s.pageKey != key {
		p := schedule.Paginate(s.events, s.filters, s.reveal.SpanDays, s.loc)
		s.page = &p
		s.pageKey = key
	}
	return s.page
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}
