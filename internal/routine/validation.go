package routine

import (
	"fmt"
	"strings"
	"time"
)

// ValidateActivityInput checks user-supplied activity fields at the edit
// boundary. Validation failures never reach the sync layer.
func ValidateActivityInput(name string, days []Day, clock string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(days) == 0 {
		return fmt.Errorf("%w: at least one day is required", ErrValidation)
	}
	for _, d := range days {
		if !validDays[d] {
			return fmt.Errorf("%w: unknown day %q", ErrValidation, d)
		}
	}
	return validateClockTime(clock)
}

// validateClockTime accepts "" or a 24-hour "HH:MM" string.
func validateClockTime(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("%w: time must be HH:MM", ErrValidation)
	}
	return nil
}

// ImportRecord is one entry of a bulk import. All fields are optional;
// NormalizeImported applies the defaulting rules.
type ImportRecord struct {
	Name   string `json:"name,omitempty"`
	Days   []Day  `json:"days,omitempty"`
	Time   string `json:"time,omitempty"`
	Locked bool   `json:"locked,omitempty"`
}

// NormalizeImported turns an import record into a valid activity. A missing
// name becomes a positional placeholder; an empty or invalid day set resets
// to all seven days; the id is always freshly assigned.
func NormalizeImported(rec ImportRecord, position int) Activity {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		name = fmt.Sprintf("Activity %d", position+1)
	}

	var days []Day
	for _, d := range rec.Days {
		if validDays[d] {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		days = AllDays()
	}

	clock := rec.Time
	if validateClockTime(clock) != nil {
		clock = ""
	}

	today := time.Now().Format(time.DateOnly)
	return Activity{
		ID:       NewID(),
		Name:     name,
		Days:     days,
		Time:     clock,
		Locked:   rec.Locked,
		Created:  today,
		Modified: today,
	}
}
