package routine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganot/dayloop/internal/routine"
)

func TestDayOf(t *testing.T) {
	// 2024-01-01 was a Monday.
	monday := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.Equal(t, routine.Monday, routine.DayOf(monday))
	require.Equal(t, routine.Sunday, routine.DayOf(monday.AddDate(0, 0, 6)))
	require.Equal(t, routine.Wednesday, routine.DayOf(monday.AddDate(0, 0, 2)))
}

func TestParseDays(t *testing.T) {
	require.Equal(t, []routine.Day{routine.Monday, routine.Friday}, routine.ParseDays("mon,fri"))
	require.Equal(t, []routine.Day{routine.Tuesday}, routine.ParseDays(" TUE "))

	// Unknown tokens are dropped; a fully invalid list resets to all days.
	require.Equal(t, []routine.Day{routine.Monday}, routine.ParseDays("mon,blursday"))
	require.Equal(t, routine.AllDays(), routine.ParseDays(""))
	require.Equal(t, routine.AllDays(), routine.ParseDays("blursday,noneday"))
}

func TestFormatDaysRoundTrip(t *testing.T) {
	days := []routine.Day{routine.Monday, routine.Wednesday, routine.Friday}
	require.Equal(t, days, routine.ParseDays(routine.FormatDays(days)))
}

func TestScheduledOn(t *testing.T) {
	weekdaysOnly := routine.Activity{Name: "Start Work", Days: []routine.Day{routine.Monday, routine.Friday}}
	require.True(t, weekdaysOnly.ScheduledOn(routine.Monday))
	require.False(t, weekdaysOnly.ScheduledOn(routine.Sunday))

	locked := routine.Activity{Name: "Wake Up", Locked: true, Days: []routine.Day{routine.Monday}}
	require.True(t, locked.ScheduledOn(routine.Sunday), "locked activities are scheduled every day")
}

func TestDefaultActivities(t *testing.T) {
	defaults := routine.DefaultActivities()
	require.Len(t, defaults, 9)
	require.Equal(t, "Wake Up", defaults[0].Name)
	require.True(t, defaults[0].Locked)

	seen := map[string]bool{}
	for _, a := range defaults {
		require.NotEmpty(t, a.ID)
		require.False(t, seen[a.ID], "ids must be unique")
		seen[a.ID] = true
		require.NotEmpty(t, a.Days)
	}

	// Work activities are weekday-only with suggested times.
	require.Equal(t, "09:00", defaults[5].Time)
	require.False(t, defaults[5].ScheduledOn(routine.Saturday))
}
