package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latinevents/internal/model"
	"latinevents/internal/schedule"
)

// mockSource is a Source backed by a function field.
type mockSource struct {
	loadFunc func(ctx context.Context, cacheBust string) ([]model.Event, error)
}

func (m *mockSource) Load(ctx context.Context, cacheBust string) ([]model.Event, error) {
	if m.loadFunc != nil {
		return m.loadFunc(ctx, cacheBust)
	}
	return nil, errors.New("not implemented")
}

func staticSource(events ...model.Event) *mockSource {
	return &mockSource{loadFunc: func(context.Context, string) ([]model.Event, error) {
		return events, nil
	}}
}

func event(date, name string, labels ...string) model.Event {
	e := model.Event{Date: date, Name: name, Labels: labels, Styles: []string{}, Region: "Region Bern"}
	if e.Labels == nil {
		e.Labels = []string{}
	}
	if t, ok := schedule.ParseDate(date, time.UTC); ok {
		e.ParsedDate = &t
	}
	return e
}

func fixedClock(date string) func() time.Time {
	t, _ := time.ParseInLocation(model.DateLayout, date, time.UTC)
	t = t.Add(15 * time.Hour)
	return func() time.Time { return t }
}

func testOptions() Options {
	return Options{
		Location: time.UTC,
		Defaults: model.Filters{Region: "Region Bern", Label: model.ExcludeCourseOnly, Style: model.All},
		Now:      fixedClock("2025-06-01"),
	}
}

func loadedSession(t *testing.T, events ...model.Event) *Session {
	t.Helper()
	s := New("test", staticSource(events...), testOptions())
	require.NoError(t, s.Reload(context.Background(), ReloadOptions{}))
	return s
}

func visibleNames(v View) []string {
	out := make([]string, 0, len(v.VisibleEvents))
	for _, e := range v.VisibleEvents {
		out = append(out, e.Name)
	}
	return out
}

func TestNewSessionDefaults(t *testing.T) {
	s := New("abc", staticSource(), testOptions())

	v := s.View()
	assert.True(t, v.Loading)
	assert.Equal(t, model.Filters{
		Region:    "Region Bern",
		Label:     model.ExcludeCourseOnly,
		Style:     model.All,
		StartDate: "2025-06-01",
	}, v.Filters)
	assert.Equal(t, schedule.InitialSpanDays, v.SpanDays)
	assert.True(t, v.Panel.FiltersOpen)
	assert.Equal(t, "abc", s.ID())
}

func TestNewSessionFillsEmptyDefaults(t *testing.T) {
	opts := testOptions()
	opts.Defaults = model.Filters{}

	f := New("x", staticSource(), opts).Filters()

	assert.Equal(t, model.All, f.Region)
	assert.Equal(t, model.All, f.Label)
	assert.Equal(t, model.All, f.Style)
}

func TestRevealWindow(t *testing.T) {
	s := loadedSession(t,
		event("2025-06-01", "first"),
		event("2025-06-14", "last in window"),
		event("2025-06-15", "first hidden"),
	)

	v := s.View()
	assert.False(t, v.Loading)
	assert.Equal(t, []string{"first", "last in window"}, visibleNames(v))
	assert.True(t, v.HasMoreEvents)
	assert.Equal(t, 3, v.FilteredCount)
	assert.Equal(t, 3, v.TotalCount)
	assert.Equal(t, "2025-06-14", v.WindowEnd)

	require.True(t, s.RequestMore())

	v = s.View()
	assert.Equal(t, 28, v.SpanDays)
	assert.Equal(t, []string{"first", "last in window", "first hidden"}, visibleNames(v))
	assert.False(t, v.HasMoreEvents)

	assert.False(t, s.RequestMore(), "no expansion without hidden events")
	assert.Equal(t, 28, s.View().SpanDays)
}

func TestFilterChangeResetsReveal(t *testing.T) {
	s := loadedSession(t,
		event("2025-06-01", "a"),
		event("2025-07-20", "b"),
	)
	require.True(t, s.RequestMore())
	require.Equal(t, 28, s.View().SpanDays)

	for _, field := range []string{model.FieldRegion, model.FieldLabel, model.FieldStyle, model.FieldStartDate} {
		t.Run(field, func(t *testing.T) {
			require.True(t, s.RequestMore())
			require.Greater(t, s.View().SpanDays, schedule.InitialSpanDays)

			require.NoError(t, s.SetFilter(field, "changed-"+field))
			assert.Equal(t, schedule.InitialSpanDays, s.View().SpanDays)

			// restore so the next subtest still has hidden events
			require.NoError(t, s.SetFilter(field, map[string]string{
				model.FieldRegion:    "Region Bern",
				model.FieldLabel:     model.ExcludeCourseOnly,
				model.FieldStyle:     model.All,
				model.FieldStartDate: "2025-06-01",
			}[field]))
		})
	}
}

func TestSetFilterIdempotent(t *testing.T) {
	s := loadedSession(t,
		event("2025-06-01", "a"),
		event("2025-06-20", "b"),
	)
	require.NoError(t, s.SetFilter(model.FieldRegion, model.All))
	require.True(t, s.RequestMore())
	before := s.View()

	require.NoError(t, s.SetFilter(model.FieldRegion, model.All))

	after := s.View()
	assert.Equal(t, before.VisibleEvents, after.VisibleEvents)
	assert.Equal(t, before.FilteredCount, after.FilteredCount)
	assert.Equal(t, before.SpanDays, after.SpanDays)
}

func TestSetFilterUnknownField(t *testing.T) {
	s := loadedSession(t)

	err := s.SetFilter("colour", "red")

	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestAllFiltersShowEverything(t *testing.T) {
	s := loadedSession(t,
		event("2024-01-01", "old"),
		event("2025-06-01", "course", "kurs"),
		event("2026-01-01", "far"),
	)
	require.NoError(t, s.SetFilter(model.FieldLabel, model.All))
	require.NoError(t, s.SetFilter(model.FieldStartDate, ""))

	v := s.View()

	assert.Equal(t, []string{"old", "course", "far"}, visibleNames(v))
	assert.False(t, v.HasMoreEvents)
	assert.Empty(t, v.WindowEnd)
}

func TestGroupedEventsFollowVisible(t *testing.T) {
	s := loadedSession(t,
		event("2025-06-01", "a"),
		event("2025-06-01", "b"),
		event("2025-06-02", "c"),
	)

	v := s.View()

	require.Len(t, v.GroupedEvents, 2)
	assert.Equal(t, "2025-06-01", v.GroupedEvents[0].Date)
	assert.Len(t, v.GroupedEvents[0].Events, 2)
	assert.Len(t, v.GroupedEvents[1].Events, 1)
}

func TestFacetsIgnoreFilters(t *testing.T) {
	other := event("2025-06-02", "zurich")
	other.Region = "Region Zürich"
	s := loadedSession(t, event("2025-06-01", "bern"), other)

	v := s.View()

	assert.Equal(t, []string{"bern"}, visibleNames(v))
	assert.Equal(t, []string{"Region Bern", "Region Zürich"}, v.Regions)
}

func TestReloadFailureDiscardsData(t *testing.T) {
	fail := false
	src := &mockSource{loadFunc: func(context.Context, string) ([]model.Event, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return []model.Event{event("2025-06-01", "a")}, nil
	}}
	s := New("s", src, testOptions())
	require.NoError(t, s.Reload(context.Background(), ReloadOptions{}))
	require.Equal(t, 1, s.View().TotalCount)

	fail = true
	err := s.Reload(context.Background(), ReloadOptions{})
	require.Error(t, err)

	v := s.View()
	assert.Equal(t, LoadErrorMessage, v.Error)
	assert.False(t, v.Loading)
	assert.Zero(t, v.TotalCount)
	assert.Empty(t, v.VisibleEvents)
	assert.Empty(t, v.Regions)

	fail = false
	require.NoError(t, s.Reload(context.Background(), ReloadOptions{}))
	v = s.View()
	assert.Empty(t, v.Error)
	assert.Equal(t, 1, v.TotalCount)
}

func TestReloadPassesCacheBustAndSilent(t *testing.T) {
	var gotBust string
	var loadingDuringLoad bool
	var s *Session
	src := &mockSource{loadFunc: func(_ context.Context, cacheBust string) ([]model.Event, error) {
		gotBust = cacheBust
		loadingDuringLoad = s.View().Loading
		return nil, nil
	}}
	s = New("s", src, testOptions())
	require.NoError(t, s.Reload(context.Background(), ReloadOptions{}))

	require.NoError(t, s.Reload(context.Background(), ReloadOptions{CacheBust: "123", Silent: true}))
	assert.Equal(t, "123", gotBust)
	assert.False(t, loadingDuringLoad)

	require.NoError(t, s.Reload(context.Background(), ReloadOptions{}))
	assert.True(t, loadingDuringLoad)
}

func TestSupersededReloadIsDiscarded(t *testing.T) {
	s := New("s", staticSource(), testOptions())

	first := s.beginReload(false)
	second := s.beginReload(true)

	s.finishReload(second, []model.Event{event("2025-06-01", "newer")}, nil)
	s.finishReload(first, []model.Event{event("2025-06-01", "older")}, nil)

	assert.Equal(t, []string{"newer"}, visibleNames(s.View()))
	assert.False(t, s.View().Loading)
}
