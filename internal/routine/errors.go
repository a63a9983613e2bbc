package routine

import "errors"

var (
	// ErrValidation indicates rejected user input (empty name, no days).
	ErrValidation = errors.New("invalid activity input")
	// ErrLocked indicates an attempt to edit, delete, or reorder a locked activity.
	ErrLocked = errors.New("activity is locked")
	// ErrNotFound indicates the referenced activity or history entry doesn't exist.
	ErrNotFound = errors.New("not found")
)
