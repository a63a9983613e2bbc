package sync

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ganot/dayloop/internal/routine"
)

// Range and header layout of the remote table. Positional rows never leak
// past this file: everything above works with typed records.
const (
	RangeActivities = "activities"
	RangeHistory    = "history"
	RangeConfig     = "config"
)

var (
	activitiesHeader = []string{"ID", "Name", "Days", "Time", "Locked", "Created", "Modified"}
	historyHeader    = []string{"ID", "Activity Name", "Timestamp", "Skipped", "Created"}
	configHeader     = []string{"Setting", "Value", "Modified"}
)

func requiredRanges() []string {
	return []string{RangeActivities, RangeHistory, RangeConfig}
}

func headerFor(rangeName string) []string {
	switch rangeName {
	case RangeActivities:
		return activitiesHeader
	case RangeHistory:
		return historyHeader
	default:
		return configHeader
	}
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// encodeActivities renders header plus one row per activity. The modified
// column is stamped at encode time.
func encodeActivities(activities []routine.Activity) [][]string {
	today := time.Now().Format(time.DateOnly)
	rows := make([][]string, 0, len(activities)+1)
	rows = append(rows, activitiesHeader)
	for _, a := range activities {
		created := a.Created
		if created == "" {
			created = today
		}
		rows = append(rows, []string{
			a.ID,
			a.Name,
			routine.FormatDays(a.Days),
			a.Time,
			formatBool(a.Locked),
			created,
			today,
		})
	}
	return rows
}

// decodeActivities parses rows (header first) into activities, applying the
// data-model defaulting rules: a missing id gets a fresh one, a missing name
// becomes a positional placeholder, an empty or invalid day set resets to
// all seven days.
func decodeActivities(rows [][]string) []routine.Activity {
	if len(rows) <= 1 {
		return nil
	}
	today := time.Now().Format(time.DateOnly)
	activities := make([]routine.Activity, 0, len(rows)-1)
	for i, row := range rows[1:] {
		a := routine.Activity{
			ID:       cell(row, 0),
			Name:     cell(row, 1),
			Days:     routine.ParseDays(cell(row, 2)),
			Time:     cell(row, 3),
			Locked:   cell(row, 4) == "TRUE",
			Created:  cell(row, 5),
			Modified: cell(row, 6),
		}
		if a.ID == "" {
			a.ID = routine.NewID()
		}
		if a.Name == "" {
			a.Name = fmt.Sprintf("Activity %d", i+1)
		}
		if a.Created == "" {
			a.Created = today
		}
		if a.Modified == "" {
			a.Modified = today
		}
		activities = append(activities, a)
	}
	return activities
}

// encodeHistory renders header plus one row per entry, sorted newest-first.
func encodeHistory(history []routine.HistoryEntry) [][]string {
	sorted := sortedHistory(history)
	rows := make([][]string, 0, len(sorted)+1)
	rows = append(rows, historyHeader)
	for _, e := range sorted {
		created := e.Created
		if created.IsZero() {
			created = e.Timestamp
		}
		rows = append(rows, []string{
			e.ID,
			e.ActivityName,
			e.Timestamp.UTC().Format(time.RFC3339),
			formatBool(e.Skipped),
			created.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

// decodeHistory parses rows (header first) into entries sorted newest-first.
func decodeHistory(rows [][]string) []routine.HistoryEntry {
	if len(rows) <= 1 {
		return nil
	}
	history := make([]routine.HistoryEntry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		e := routine.HistoryEntry{
			ID:           cell(row, 0),
			ActivityName: cell(row, 1),
			Skipped:      cell(row, 3) == "TRUE",
		}
		if e.ID == "" {
			e.ID = routine.NewID()
		}
		if e.ActivityName == "" {
			e.ActivityName = "Unknown Activity"
		}
		ts, err := time.Parse(time.RFC3339, cell(row, 2))
		if err != nil {
			ts = time.Now().UTC()
		}
		e.Timestamp = ts
		created, err := time.Parse(time.RFC3339, cell(row, 4))
		if err != nil {
			created = ts
		}
		e.Created = created
		history = append(history, e)
	}
	return sortedHistory(history)
}

// sortedHistory returns a newest-first copy; input order is preserved for
// equal timestamps.
func sortedHistory(history []routine.HistoryEntry) []routine.HistoryEntry {
	sorted := make([]routine.HistoryEntry, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	return sorted
}

// configRow is one (key, value, modified) triple of the config range.
type configRow struct {
	Key      string
	Value    string
	Modified string
}

func encodeConfig(rows []configRow) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, configHeader)
	for _, r := range rows {
		out = append(out, []string{r.Key, r.Value, r.Modified})
	}
	return out
}

func decodeConfig(rows [][]string) []configRow {
	if len(rows) <= 1 {
		return nil
	}
	out := make([]configRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		key := cell(row, 0)
		if key == "" {
			continue
		}
		out = append(out, configRow{
			Key:      key,
			Value:    cell(row, 1),
			Modified: cell(row, 2),
		})
	}
	return out
}

func parseCursor(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
