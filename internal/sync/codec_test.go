package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganot/dayloop/internal/routine"
)

func TestEncodeDecodeActivities(t *testing.T) {
	activities := []routine.Activity{
		{ID: "a1", Name: "Run", Days: []routine.Day{routine.Monday, routine.Wednesday}, Time: "06:30"},
		{ID: "a2", Name: "Wake Up", Days: routine.AllDays(), Locked: true},
	}

	rows := encodeActivities(activities)
	require.Len(t, rows, 3)
	require.Equal(t, activitiesHeader, rows[0])
	require.Equal(t, "a1", rows[1][0])
	require.Equal(t, "mon,wed", rows[1][2])
	require.Equal(t, "FALSE", rows[1][4])
	require.Equal(t, "TRUE", rows[2][4])

	decoded := decodeActivities(rows)
	require.Len(t, decoded, 2)
	require.Equal(t, "Run", decoded[0].Name)
	require.Equal(t, []routine.Day{routine.Monday, routine.Wednesday}, decoded[0].Days)
	require.Equal(t, "06:30", decoded[0].Time)
	require.True(t, decoded[1].Locked)
}

func TestDecodeActivities_Defaulting(t *testing.T) {
	rows := [][]string{
		activitiesHeader,
		{"", "", "", "", "", "", ""},
		{"x", "Short row"},
	}

	decoded := decodeActivities(rows)
	require.Len(t, decoded, 2)

	require.NotEmpty(t, decoded[0].ID, "missing id is synthesized")
	require.Equal(t, "Activity 1", decoded[0].Name)
	require.Equal(t, routine.AllDays(), decoded[0].Days)

	require.Equal(t, "x", decoded[1].ID)
	require.Equal(t, "Short row", decoded[1].Name)
	require.Equal(t, routine.AllDays(), decoded[1].Days, "short rows default the day set")
}

func TestDecodeActivities_HeaderOnly(t *testing.T) {
	require.Nil(t, decodeActivities([][]string{activitiesHeader}))
	require.Nil(t, decodeActivities(nil))
}

func TestEncodeDecodeHistory_NewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	history := []routine.HistoryEntry{
		{ID: "h1", ActivityName: "Old", Timestamp: base},
		{ID: "h2", ActivityName: "New", Timestamp: base.Add(time.Hour)},
	}

	rows := encodeHistory(history)
	require.Len(t, rows, 3)
	require.Equal(t, "New", rows[1][1], "rows are written newest-first")
	require.Equal(t, "Old", rows[2][1])

	decoded := decodeHistory(rows)
	require.Len(t, decoded, 2)
	require.Equal(t, "New", decoded[0].ActivityName)
	require.True(t, decoded[0].Timestamp.Equal(base.Add(time.Hour)))
	require.False(t, decoded[0].Skipped)
}

func TestDecodeHistory_BadTimestamps(t *testing.T) {
	rows := [][]string{
		historyHeader,
		{"h1", "X", "not-a-time", "TRUE", ""},
	}
	decoded := decodeHistory(rows)
	require.Len(t, decoded, 1)
	require.True(t, decoded[0].Skipped)
	require.False(t, decoded[0].Timestamp.IsZero(), "unparseable timestamp is replaced, not zeroed")
}

func TestConfigRows(t *testing.T) {
	rows := encodeConfig([]configRow{
		{Key: "current_activity_index", Value: "3", Modified: "2024-01-01T00:00:00Z"},
		{Key: "last_sync", Value: "2024-01-01T10:00:00Z"},
	})
	require.Equal(t, configHeader, rows[0])

	decoded := decodeConfig(rows)
	require.Len(t, decoded, 2)
	require.Equal(t, "3", decoded[0].Value)

	// Rows with an empty key are skipped.
	decoded = decodeConfig([][]string{configHeader, {"", "orphan", ""}})
	require.Empty(t, decoded)
}

func TestParseCursor(t *testing.T) {
	require.Equal(t, 4, parseCursor("4"))
	require.Equal(t, 0, parseCursor(""))
	require.Equal(t, 0, parseCursor("-2"))
	require.Equal(t, 0, parseCursor("abc"))
}
