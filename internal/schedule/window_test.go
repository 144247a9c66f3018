package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latinevents/internal/model"
)

func TestPaginateWindow(t *testing.T) {
	events := []model.Event{
		ev("2025-06-01", "", "first"),
		ev("2025-06-14", "", "last in window"),
		ev("2025-06-15", "", "first hidden"),
	}
	f := allFilters()
	f.StartDate = "2025-06-01"
	reveal := NewRevealState(InitialSpanDays)

	page := Paginate(events, f, reveal.SpanDays, testLoc)
	assert.Equal(t, []string{"first", "last in window"}, names(page.Visible))
	assert.Len(t, page.Filtered, 3)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.WindowEnd)
	assert.Equal(t, "2025-06-14", page.WindowEnd.Format(model.DateLayout))

	require.True(t, reveal.Expand(page.HasMore))
	assert.Equal(t, 28, reveal.SpanDays)

	page = Paginate(events, f, reveal.SpanDays, testLoc)
	assert.Equal(t, []string{"first", "last in window", "first hidden"}, names(page.Visible))
	assert.False(t, page.HasMore)
}

func TestPaginateWithoutStartDate(t *testing.T) {
	events := []model.Event{
		ev("2025-06-01", "", "a"),
		ev("2026-06-01", "", "b"),
	}

	page := Paginate(events, allFilters(), InitialSpanDays, testLoc)

	assert.Len(t, page.Visible, 2)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.WindowEnd)
}

func TestPaginateExcludesUnparsableDates(t *testing.T) {
	events := []model.Event{
		ev("2025-13-45", "", "broken"),
		ev("2025-06-02", "", "ok"),
	}
	f := allFilters()
	f.StartDate = "2025-06-01"

	page := Paginate(events, f, InitialSpanDays, testLoc)

	assert.Equal(t, []string{"ok"}, names(page.Visible))
	assert.Equal(t, []string{"ok"}, names(page.Filtered))
}

func TestRevealState(t *testing.T) {
	r := NewRevealState(0)
	assert.Equal(t, InitialSpanDays, r.SpanDays)

	assert.False(t, r.Expand(false))
	assert.Equal(t, 14, r.SpanDays)

	r.Expand(true)
	r.Expand(true)
	assert.Equal(t, 42, r.SpanDays)

	r.Reset()
	assert.Equal(t, 14, r.SpanDays)
}

func TestWindowEndCrossesMonth(t *testing.T) {
	end, ok := WindowEnd("2025-02-20", 14, testLoc)

	require.True(t, ok)
	assert.Equal(t, "2025-03-05", end.Format(model.DateLayout))
}
