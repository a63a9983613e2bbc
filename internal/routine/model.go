package routine

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Day is a lowercase three-letter weekday token.
type Day string

const (
	Monday    Day = "mon"
	Tuesday   Day = "tue"
	Wednesday Day = "wed"
	Thursday  Day = "thu"
	Friday    Day = "fri"
	Saturday  Day = "sat"
	Sunday    Day = "sun"
)

// AllDays returns every weekday token in calendar order.
func AllDays() []Day {
	return []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

var validDays = map[Day]bool{
	Monday: true, Tuesday: true, Wednesday: true, Thursday: true,
	Friday: true, Saturday: true, Sunday: true,
}

// DayOf returns the weekday token for a point in time (local wall clock of t).
func DayOf(t time.Time) Day {
	switch t.Weekday() {
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return Sunday
	}
}

// ParseDays parses a comma-separated day list. An empty or fully invalid
// list yields all seven days; unknown tokens are dropped.
func ParseDays(s string) []Day {
	var days []Day
	for _, tok := range strings.Split(s, ",") {
		d := Day(strings.ToLower(strings.TrimSpace(tok)))
		if validDays[d] {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return AllDays()
	}
	return days
}

// FormatDays renders a day list as the comma-separated storage form.
func FormatDays(days []Day) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}

// Activity is a recurring scheduled task the user cycles through daily.
type Activity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Days     []Day  `json:"days"`
	Time     string `json:"time,omitempty"` // "HH:MM", empty for no suggested time
	Locked   bool   `json:"locked"`
	Created  string `json:"created,omitempty"`  // date-only, informational
	Modified string `json:"modified,omitempty"` // date-only, informational
}

// ScheduledOn reports whether the activity runs on the given day.
// Locked activities are scheduled every day.
func (a Activity) ScheduledOn(day Day) bool {
	if a.Locked {
		return true
	}
	for _, d := range a.Days {
		if d == day {
			return true
		}
	}
	return false
}

// HistoryEntry records an activity being completed or skipped. ActivityName
// is a denormalized copy and survives deletion or rename of the activity.
type HistoryEntry struct {
	ID           string    `json:"id"`
	ActivityName string    `json:"activityName"`
	Timestamp    time.Time `json:"timestamp"`
	Skipped      bool      `json:"skipped"`
	Created      time.Time `json:"created"`
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// DefaultActivities returns the built-in activity set seeded when the
// collection is empty. The first entry is the locked day-start sentinel.
func DefaultActivities() []Activity {
	weekdays := []Day{Monday, Tuesday, Wednesday, Thursday, Friday}
	defaults := []Activity{
		{Name: "Wake Up", Locked: true, Days: AllDays()},
		{Name: "Brush Teeth", Days: AllDays()},
		{Name: "Shower", Days: AllDays()},
		{Name: "Get Dressed", Days: AllDays()},
		{Name: "Eat Breakfast", Days: AllDays()},
		{Name: "Start Work", Days: weekdays, Time: "09:00"},
		{Name: "Lunch Break", Days: weekdays, Time: "12:00"},
		{Name: "Wrap Up Work", Days: weekdays, Time: "17:00"},
		{Name: "Be in Bed", Days: AllDays(), Time: "22:00"},
	}
	today := time.Now().Format(time.DateOnly)
	for i := range defaults {
		defaults[i].ID = NewID()
		defaults[i].Created = today
		defaults[i].Modified = today
	}
	return defaults
}
