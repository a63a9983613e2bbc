package routine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// State is the session-level sync state. Once a session falls to
// StateOffline it never returns to StateConnected without an explicit
// Reconnect call.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateConnected
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateConnected:
		return "connected"
	case StateOffline:
		return "offline_fallback"
	default:
		return "uninitialized"
	}
}

// Store is the persistence surface the tracker drives. Load methods do their
// own remote-then-backup fallback; any error from LoadActivities or
// LoadHistory means no stored data exists anywhere. Save methods write the
// local backup unconditionally and the remote store when healthy; Backup
// methods write only the local snapshot.
type Store interface {
	Initialize(ctx context.Context) error
	Healthy() bool
	TryBeginSync() bool
	EndSync()

	LoadActivities(ctx context.Context) ([]Activity, error)
	LoadHistory(ctx context.Context) ([]HistoryEntry, error)
	LoadCursor(ctx context.Context) int

	SaveActivities(ctx context.Context, activities []Activity) error
	SaveHistory(ctx context.Context, history []HistoryEntry) error
	SaveCursor(ctx context.Context, cursor int) error

	BackupActivities(activities []Activity)
	BackupHistory(history []HistoryEntry)
	BackupCursor(cursor int)

	UpdateLastSync(ctx context.Context, at time.Time)
}

// Status is a point-in-time snapshot of the tracker for status reporting.
type Status struct {
	State         State
	Edited        bool
	ActivityCount int
	HistoryCount  int
	Cursor        int
	LastSync      time.Time
}

// Tracker holds the in-memory routine state: the activity collection, the
// completion history, and the cursor into today's filtered list. All
// mutations go through the tracker; the store only ever sees full snapshots.
type Tracker struct {
	store  Store
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	activities []Activity
	history    []HistoryEntry
	cursor     int
	edited     bool
	lastSync   time.Time
}

// NewTracker creates a tracker in the uninitialized state. Call Load before
// anything else.
func NewTracker(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger}
}

// Load initializes the remote store and loads all entities, falling back to
// local backups and built-in defaults. Load never fails: any setup failure
// lands the session in offline mode with whatever data is available. The
// cursor is advanced past activities already completed today, so a session
// resumed mid-day picks up where an external surface left off.
func (t *Tracker) Load(ctx context.Context, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateInitializing
	t.edited = false

	if err := t.store.Initialize(ctx); err != nil {
		t.logger.Warn("remote initialization failed, running offline", "error", err)
		t.state = StateOffline
	} else {
		t.state = StateConnected
	}

	activities, err := t.store.LoadActivities(ctx)
	if err != nil {
		t.logger.Info("no stored activities, seeding defaults")
		activities = DefaultActivities()
		t.store.BackupActivities(activities)
	}
	t.activities = activities

	history, err := t.store.LoadHistory(ctx)
	if err != nil {
		history = nil
	}
	t.history = history

	t.cursor = t.store.LoadCursor(ctx)
	t.demoteIfUnhealthy()
	t.advanceCursorLocked(now)
}

// State returns the current session sync state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Status returns a snapshot for status reporting.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		State:         t.state,
		Edited:        t.edited,
		ActivityCount: len(t.activities),
		HistoryCount:  len(t.history),
		Cursor:        t.cursor,
		LastSync:      t.lastSync,
	}
}

// Activities returns a copy of the full activity collection in order.
func (t *Tracker) Activities() []Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyActivities(t.activities)
}

// History returns a copy of the history, newest first.
func (t *Tracker) History() []HistoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]HistoryEntry, len(t.history))
	copy(out, t.history)
	return out
}

// TodayActivities returns the activities scheduled on now's weekday, in
// collection order.
func (t *Tracker) TodayActivities(now time.Time) []Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.todayLocked(now)
}

// CurrentActivity returns the activity the cursor points at within today's
// list, or nil when nothing is scheduled today.
func (t *Tracker) CurrentActivity(now time.Time) *Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	today := t.todayLocked(now)
	if len(today) == 0 {
		return nil
	}
	a := today[effectiveCursor(t.cursor, len(today))]
	return &a
}

// Complete records the current activity as done, advances the cursor, and
// persists. Returns the completed activity, or nil when nothing is scheduled
// today (a safe no-op).
func (t *Tracker) Complete(ctx context.Context, now time.Time) *Activity {
	return t.record(ctx, now, false)
}

// Skip records the current activity as skipped and advances the cursor.
func (t *Tracker) Skip(ctx context.Context, now time.Time) *Activity {
	return t.record(ctx, now, true)
}

func (t *Tracker) record(ctx context.Context, now time.Time, skipped bool) *Activity {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.todayLocked(now)
	if len(today) == 0 {
		return nil
	}

	idx := effectiveCursor(t.cursor, len(today))
	current := today[idx]

	entry := HistoryEntry{
		ID:           NewID(),
		ActivityName: current.Name,
		Timestamp:    now,
		Skipped:      skipped,
		Created:      now,
	}
	t.history = append([]HistoryEntry{entry}, t.history...)
	t.cursor = (idx + 1) % len(today)
	t.edited = true

	t.persistHistory(ctx)
	t.persistCursor(ctx)
	return &current
}

// AdvanceCursorPastCompleted walks the cursor forward past activities whose
// names already have a non-skipped history entry from today. Wraps around at
// most once, so a fully-completed day leaves the cursor where it started.
func (t *Tracker) AdvanceCursorPastCompleted(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advanceCursorLocked(now)
}

func (t *Tracker) advanceCursorLocked(now time.Time) {
	today := t.todayLocked(now)
	if len(today) == 0 {
		return
	}

	done := make(map[string]bool)
	y, m, d := now.Date()
	for _, e := range t.history {
		ey, em, ed := e.Timestamp.Date()
		if !e.Skipped && ey == y && em == m && ed == d {
			done[e.ActivityName] = true
		}
	}
	if len(done) == 0 {
		t.cursor = effectiveCursor(t.cursor, len(today))
		return
	}

	idx := effectiveCursor(t.cursor, len(today))
	for range today {
		if !done[today[idx].Name] {
			break
		}
		idx = (idx + 1) % len(today)
	}
	t.cursor = idx
}

// AddActivity validates and appends a new activity.
func (t *Tracker) AddActivity(ctx context.Context, name string, days []Day, clock string, now time.Time) (Activity, error) {
	if err := ValidateActivityInput(name, days, clock); err != nil {
		return Activity{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	date := now.Format(time.DateOnly)
	a := Activity{
		ID:       NewID(),
		Name:     name,
		Days:     days,
		Time:     clock,
		Created:  date,
		Modified: date,
	}
	t.activities = append(t.activities, a)
	t.edited = true
	t.persistActivities(ctx)
	return a, nil
}

// UpdateActivity edits an unlocked activity's name, days, or time. Passing a
// nil days slice or empty string leaves that field unchanged.
func (t *Tracker) UpdateActivity(ctx context.Context, id, name string, days []Day, clock *string, now time.Time) (Activity, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOfLocked(id)
	if i < 0 {
		return Activity{}, fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	if t.activities[i].Locked {
		return Activity{}, fmt.Errorf("activity %q: %w", t.activities[i].Name, ErrLocked)
	}

	next := t.activities[i]
	if name != "" {
		next.Name = name
	}
	if days != nil {
		next.Days = days
	}
	if clock != nil {
		next.Time = *clock
	}
	if err := ValidateActivityInput(next.Name, next.Days, next.Time); err != nil {
		return Activity{}, err
	}
	next.Modified = now.Format(time.DateOnly)

	t.activities[i] = next
	t.edited = true
	t.persistActivities(ctx)
	return next, nil
}

// DeleteActivity removes an unlocked activity.
func (t *Tracker) DeleteActivity(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOfLocked(id)
	if i < 0 {
		return fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	if t.activities[i].Locked {
		return fmt.Errorf("activity %q: %w", t.activities[i].Name, ErrLocked)
	}

	t.activities = append(t.activities[:i], t.activities[i+1:]...)
	t.edited = true
	t.persistActivities(ctx)
	t.persistCursor(ctx)
	return nil
}

// ReorderActivities moves the activity at from to position to, preserving
// the relative order of everything else. Moves touching a locked activity
// are rejected.
func (t *Tracker) ReorderActivities(ctx context.Context, from, to int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.activities)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: position out of range", ErrValidation)
	}
	if t.activities[from].Locked || t.activities[to].Locked {
		return fmt.Errorf("cannot move %q: %w", t.activities[from].Name, ErrLocked)
	}
	if from == to {
		return nil
	}

	moved := t.activities[from]
	rest := append(t.activities[:from:from], t.activities[from+1:]...)
	t.activities = append(rest[:to:to], append([]Activity{moved}, rest[to:]...)...)
	t.edited = true
	t.persistActivities(ctx)
	return nil
}

// ImportActivities atomically replaces the whole collection with the
// normalized records and resets the cursor.
func (t *Tracker) ImportActivities(ctx context.Context, records []ImportRecord) []Activity {
	t.mu.Lock()
	defer t.mu.Unlock()

	activities := make([]Activity, 0, len(records))
	for i, rec := range records {
		activities = append(activities, NormalizeImported(rec, i))
	}

	t.activities = activities
	t.cursor = 0
	t.edited = true
	t.persistActivities(ctx)
	t.persistCursor(ctx)
	return copyActivities(activities)
}

// ExportActivities renders the collection as portable import records.
func (t *Tracker) ExportActivities() []ImportRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ImportRecord, 0, len(t.activities))
	for _, a := range t.activities {
		out = append(out, ImportRecord{
			Name:   a.Name,
			Days:   a.Days,
			Time:   a.Time,
			Locked: a.Locked,
		})
	}
	return out
}

// UpdateHistoryEntry edits an entry's timestamp and/or skipped flag. The
// history is re-sorted newest-first afterwards.
func (t *Tracker) UpdateHistoryEntry(ctx context.Context, id string, timestamp *time.Time, skipped *bool) (HistoryEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.historyIndexLocked(id)
	if i < 0 {
		return HistoryEntry{}, fmt.Errorf("history entry %s: %w", id, ErrNotFound)
	}
	if timestamp != nil {
		t.history[i].Timestamp = *timestamp
	}
	if skipped != nil {
		t.history[i].Skipped = *skipped
	}
	entry := t.history[i]

	t.sortHistoryLocked()
	t.edited = true
	t.persistHistory(ctx)
	return entry, nil
}

// DeleteHistoryEntry removes one entry.
func (t *Tracker) DeleteHistoryEntry(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.historyIndexLocked(id)
	if i < 0 {
		return fmt.Errorf("history entry %s: %w", id, ErrNotFound)
	}
	t.history = append(t.history[:i], t.history[i+1:]...)
	t.edited = true
	t.persistHistory(ctx)
	return nil
}

// ClearHistory removes every entry.
func (t *Tracker) ClearHistory(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = nil
	t.edited = true
	t.persistHistory(ctx)
}

// SyncNow pushes the full in-memory state to the store. Before the first
// user edit of the session only local backups are written, so an unedited
// session can never overwrite remote data with seeded defaults. Concurrent
// calls are collapsed: a sync already in flight makes this one a no-op.
func (t *Tracker) SyncNow(ctx context.Context, now time.Time) error {
	if !t.store.TryBeginSync() {
		t.logger.Debug("sync already in progress, skipping")
		return nil
	}
	defer t.store.EndSync()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.edited {
		t.store.BackupActivities(t.activities)
		t.store.BackupHistory(t.history)
		t.store.BackupCursor(t.cursor)
		return nil
	}

	errA := t.store.SaveActivities(ctx, t.activities)
	errH := t.store.SaveHistory(ctx, t.history)
	errC := t.store.SaveCursor(ctx, t.cursor)
	t.demoteIfUnhealthy()

	for _, err := range []error{errA, errH, errC} {
		if err != nil {
			return err
		}
	}
	if t.state == StateConnected {
		t.lastSync = now
		t.store.UpdateLastSync(ctx, now)
	}
	return nil
}

// Reconnect re-runs remote initialization after an offline fall. On success
// the session returns to connected and, if the user has edited, the current
// state is pushed remotely.
func (t *Tracker) Reconnect(ctx context.Context, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateInitializing
	if err := t.store.Initialize(ctx); err != nil {
		t.state = StateOffline
		return err
	}
	t.state = StateConnected

	if t.edited {
		t.persistActivities(ctx)
		t.persistHistory(ctx)
		t.persistCursor(ctx)
		if t.state == StateConnected {
			t.lastSync = now
			t.store.UpdateLastSync(ctx, now)
		}
	}
	return nil
}

// todayLocked filters by now's weekday. Caller holds t.mu.
func (t *Tracker) todayLocked(now time.Time) []Activity {
	day := DayOf(now)
	var today []Activity
	for _, a := range t.activities {
		if a.ScheduledOn(day) {
			today = append(today, a)
		}
	}
	return today
}

func (t *Tracker) indexOfLocked(id string) int {
	for i, a := range t.activities {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (t *Tracker) historyIndexLocked(id string) int {
	for i, e := range t.history {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (t *Tracker) sortHistoryLocked() {
	sort.SliceStable(t.history, func(i, j int) bool {
		return t.history[i].Timestamp.After(t.history[j].Timestamp)
	})
}

// persist helpers write through the edit-gate: before the first user edit,
// only the local backup is touched. They never fail the calling operation;
// remote trouble demotes the session to offline instead.
func (t *Tracker) persistActivities(ctx context.Context) {
	if !t.edited {
		t.store.BackupActivities(t.activities)
		return
	}
	if err := t.store.SaveActivities(ctx, t.activities); err != nil {
		t.logger.Warn("remote activities save failed, local backup kept", "error", err)
	}
	t.demoteIfUnhealthy()
}

func (t *Tracker) persistHistory(ctx context.Context) {
	if !t.edited {
		t.store.BackupHistory(t.history)
		return
	}
	if err := t.store.SaveHistory(ctx, t.history); err != nil {
		t.logger.Warn("remote history save failed, local backup kept", "error", err)
	}
	t.demoteIfUnhealthy()
}

func (t *Tracker) persistCursor(ctx context.Context) {
	if !t.edited {
		t.store.BackupCursor(t.cursor)
		return
	}
	if err := t.store.SaveCursor(ctx, t.cursor); err != nil {
		t.logger.Warn("remote cursor save failed, local backup kept", "error", err)
	}
	t.demoteIfUnhealthy()
}

func (t *Tracker) demoteIfUnhealthy() {
	if t.state == StateConnected && !t.store.Healthy() {
		t.logger.Warn("remote store unreachable, falling back to local data")
		t.state = StateOffline
	}
}

func effectiveCursor(cursor, n int) int {
	if n <= 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return cursor % n
	}
	return cursor
}

func copyActivities(activities []Activity) []Activity {
	out := make([]Activity, len(activities))
	copy(out, activities)
	return out
}
