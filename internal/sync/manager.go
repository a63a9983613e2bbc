// Package sync coordinates the remote record table with the local backup
// store. The manager owns table discovery and schema repair, per-entity load
// and save, and the remote-health flag the rest of the application consults
// before attempting remote writes.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ganot/dayloop/internal/localstore"
	"github.com/ganot/dayloop/internal/routine"
	"github.com/ganot/dayloop/internal/sheets"
)

// Config-range keys.
const (
	ConfigKeyCursor   = "current_activity_index"
	ConfigKeyLastSync = "last_sync"
)

var (
	// ErrUseDefaults signals that neither the remote table nor a local
	// backup could supply the entity; the caller should fall back to its
	// built-in defaults.
	ErrUseDefaults = errors.New("no stored data available")

	// ErrSetup signals that the remote table could not be discovered,
	// created, or repaired.
	ErrSetup = errors.New("remote table setup failed")

	// ErrSyncBusy signals that a full synchronization pass is already
	// running.
	ErrSyncBusy = errors.New("sync already in progress")
)

// Backup entity names.
const (
	entityActivities = "activities"
	entityHistory    = "history"
	entityCursor     = "cursor"
)

// Options configures a Manager.
type Options struct {
	API       RecordAPI
	Store     BackupStore
	TableID   string // explicit table id, overrides discovery
	TableName string // table name for find-or-create
	Logger    *slog.Logger
}

// Manager binds a remote record table to the local backup store.
type Manager struct {
	api       RecordAPI
	store     BackupStore
	tableName string
	logger    *slog.Logger

	configuredID string
	tableID      string

	healthy  atomic.Bool
	syncBusy atomic.Bool
}

// NewManager creates a manager. Call Initialize before loading or saving.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		api:          opts.API,
		store:        opts.Store,
		configuredID: opts.TableID,
		tableName:    opts.TableName,
		logger:       logger,
	}
}

// Healthy reports whether the last remote exchange succeeded. It flips false
// on any remote failure and back true only through Initialize or a
// successful remote operation started by the caller.
func (m *Manager) Healthy() bool {
	return m.healthy.Load()
}

// TableID returns the resolved remote table id, empty before Initialize.
func (m *Manager) TableID() string {
	return m.tableID
}

// TryBeginSync claims the single in-flight synchronization slot. Callers
// that get true must call EndSync.
func (m *Manager) TryBeginSync() bool {
	return m.syncBusy.CompareAndSwap(false, true)
}

// EndSync releases the synchronization slot.
func (m *Manager) EndSync() {
	m.syncBusy.Store(false)
}

// Initialize resolves the remote table and repairs its schema. Resolution
// order: explicit configured id, cached id from a previous session, lookup
// by name, then creation. Only the creation path migrates legacy local-only
// data into the new table. Initialize is idempotent; rerunning it after a
// network outage is the reconnect path.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.api == nil {
		return fmt.Errorf("%w: remote sync disabled", ErrSetup)
	}

	table, created, err := m.resolveTable(ctx)
	if err != nil {
		m.healthy.Store(false)
		return fmt.Errorf("%w: %v", ErrSetup, err)
	}

	if err := m.repairSchema(ctx, table); err != nil {
		m.healthy.Store(false)
		return fmt.Errorf("%w: %v", ErrSetup, err)
	}

	m.tableID = table.ID
	if err := m.store.Set(localstore.KeyTableID, table.ID); err != nil {
		m.logger.Warn("failed to cache table id", "error", err)
	}
	if err := m.store.Set(localstore.KeyTableName, table.Name); err != nil {
		m.logger.Warn("failed to cache table name", "error", err)
	}

	if created {
		if err := m.seedInitialData(ctx); err != nil {
			m.healthy.Store(false)
			return fmt.Errorf("%w: %v", ErrSetup, err)
		}
		if m.store.HasLegacyData() {
			if err := m.migrateLegacyData(ctx); err != nil {
				m.logger.Warn("legacy data migration failed", "error", err)
			}
		}
	}

	m.healthy.Store(true)
	m.logger.Info("remote table ready", "table_id", table.ID, "created", created)
	return nil
}

// resolveTable finds or creates the remote table. The second return value
// reports whether the table was created in this call.
func (m *Manager) resolveTable(ctx context.Context) (*sheets.Table, bool, error) {
	if m.configuredID != "" {
		table, err := m.api.GetTable(ctx, m.configuredID)
		if err != nil {
			return nil, false, fmt.Errorf("configured table %s: %w", m.configuredID, err)
		}
		return table, false, nil
	}

	if cachedID, err := m.store.Get(localstore.KeyTableID); err == nil && cachedID != "" {
		table, err := m.api.GetTable(ctx, cachedID)
		if err == nil {
			return table, false, nil
		}
		if sheets.KindOf(err) != sheets.KindNotFound {
			return nil, false, err
		}
		m.logger.Info("cached table no longer exists, rediscovering", "table_id", cachedID)
		if err := m.store.Delete(localstore.KeyTableID); err != nil {
			m.logger.Warn("failed to drop stale table id", "error", err)
		}
	}

	tables, err := m.api.FindTableByName(ctx, m.tableName)
	if err != nil && sheets.KindOf(err) != sheets.KindNotFound {
		return nil, false, err
	}
	if len(tables) > 0 {
		table := tables[0]
		return &table, false, nil
	}

	table, err := m.api.CreateTable(ctx, m.tableName)
	if err != nil {
		return nil, false, fmt.Errorf("create table %q: %w", m.tableName, err)
	}
	return table, true, nil
}

// repairSchema makes sure every required range exists and carries its header
// row. Existing rows are left alone; only missing ranges and empty ranges
// are touched, so repeated runs are safe.
func (m *Manager) repairSchema(ctx context.Context, table *sheets.Table) error {
	existing := make(map[string]bool, len(table.Ranges))
	for _, r := range table.Ranges {
		existing[r] = true
	}

	for _, rangeName := range requiredRanges() {
		if !existing[rangeName] {
			m.logger.Info("adding missing range", "table_id", table.ID, "range", rangeName)
			if err := m.api.AddRange(ctx, table.ID, rangeName); err != nil {
				return fmt.Errorf("add range %s: %w", rangeName, err)
			}
		}
	}

	contents, err := m.api.BatchGet(ctx, table.ID, requiredRanges())
	if err != nil && sheets.KindOf(err) != sheets.KindNotFound {
		return fmt.Errorf("inspect ranges: %w", err)
	}
	rowsByRange := make(map[string][][]string, len(contents))
	for _, vr := range contents {
		rowsByRange[vr.Range] = vr.Values
	}
	for _, rangeName := range requiredRanges() {
		if len(rowsByRange[rangeName]) == 0 {
			if err := m.api.SetValues(ctx, table.ID, rangeName, [][]string{headerFor(rangeName)}); err != nil {
				return fmt.Errorf("write header %s: %w", rangeName, err)
			}
		}
	}
	return nil
}

// seedInitialData populates a freshly created table with the default
// activity set and the initial config rows, so a brand-new remote starts
// from the same state a brand-new local session does. Runs before legacy
// migration, which overwrites it when pre-sync local data exists.
func (m *Manager) seedInitialData(ctx context.Context) error {
	m.logger.Info("seeding new remote table with default activities")
	now := time.Now().UTC().Format(time.RFC3339)
	data := []sheets.ValueRange{
		{Range: RangeActivities, Values: encodeActivities(routine.DefaultActivities())},
		{Range: RangeConfig, Values: encodeConfig([]configRow{{
			Key:      ConfigKeyCursor,
			Value:    "0",
			Modified: now,
		}})},
	}
	return m.api.BatchSet(ctx, m.tableID, data)
}

// migrateLegacyData pushes pre-sync local-only data into the freshly created
// table, then clears it so the next load reads from the table.
func (m *Manager) migrateLegacyData(ctx context.Context) error {
	m.logger.Info("migrating local data into new remote table")

	var data []sheets.ValueRange

	var activities []routine.Activity
	if err := m.store.GetJSON(localstore.KeyActivities, &activities); err == nil && len(activities) > 0 {
		data = append(data, sheets.ValueRange{Range: RangeActivities, Values: encodeActivities(activities)})
	}

	var history []routine.HistoryEntry
	if err := m.store.GetJSON(localstore.KeyHistory, &history); err == nil && len(history) > 0 {
		data = append(data, sheets.ValueRange{Range: RangeHistory, Values: encodeHistory(history)})
	}

	if raw, err := m.store.Get(localstore.KeyCursor); err == nil && raw != "" {
		cursor := parseCursor(raw)
		rows := encodeConfig([]configRow{{
			Key:      ConfigKeyCursor,
			Value:    strconv.Itoa(cursor),
			Modified: time.Now().UTC().Format(time.RFC3339),
		}})
		data = append(data, sheets.ValueRange{Range: RangeConfig, Values: rows})
	}

	if len(data) > 0 {
		if err := m.api.BatchSet(ctx, m.tableID, data); err != nil {
			return err
		}
	}
	return m.store.ClearLegacyData()
}

// LoadActivities reads the activity list, remote first. A successful remote
// read refreshes the local backup; a failed one falls back to the backup.
// ErrUseDefaults means neither source had data.
func (m *Manager) LoadActivities(ctx context.Context) ([]routine.Activity, error) {
	if m.tableID != "" && m.Healthy() {
		rows, err := m.api.GetValues(ctx, m.tableID, RangeActivities)
		if err == nil {
			activities := decodeActivities(rows)
			if len(activities) > 0 {
				if berr := m.store.SaveBackup(entityActivities, activities); berr != nil {
					m.logger.Warn("failed to refresh activities backup", "error", berr)
				}
				return activities, nil
			}
			return nil, ErrUseDefaults
		}
		m.remoteFailed("load activities", err)
	}

	var activities []routine.Activity
	if _, err := m.store.LoadBackup(entityActivities, &activities); err == nil && len(activities) > 0 {
		m.logger.Info("loaded activities from local backup")
		return activities, nil
	}
	return nil, ErrUseDefaults
}

// LoadHistory reads completion history, remote first with backup fallback,
// newest entries first. ErrUseDefaults means no data anywhere; callers
// treat that as an empty history.
func (m *Manager) LoadHistory(ctx context.Context) ([]routine.HistoryEntry, error) {
	if m.tableID != "" && m.Healthy() {
		rows, err := m.api.GetValues(ctx, m.tableID, RangeHistory)
		if err == nil {
			history := decodeHistory(rows)
			if berr := m.store.SaveBackup(entityHistory, history); berr != nil {
				m.logger.Warn("failed to refresh history backup", "error", berr)
			}
			return history, nil
		}
		m.remoteFailed("load history", err)
	}

	var history []routine.HistoryEntry
	if _, err := m.store.LoadBackup(entityHistory, &history); err == nil {
		m.logger.Info("loaded history from local backup")
		return sortedHistory(history), nil
	}
	return nil, ErrUseDefaults
}

// LoadCursor reads the persisted cursor position from the config range,
// falling back to the local backup. Absent or malformed values load as 0.
func (m *Manager) LoadCursor(ctx context.Context) int {
	if m.tableID != "" && m.Healthy() {
		value, err := m.loadConfigValue(ctx, ConfigKeyCursor)
		if err == nil {
			cursor := parseCursor(value)
			if berr := m.store.SaveBackup(entityCursor, cursor); berr != nil {
				m.logger.Warn("failed to refresh cursor backup", "error", berr)
			}
			return cursor
		}
		m.remoteFailed("load cursor", err)
	}

	var cursor int
	if _, err := m.store.LoadBackup(entityCursor, &cursor); err == nil && cursor >= 0 {
		return cursor
	}
	return 0
}

// SaveActivities writes the activity list to the local backup and, when the
// remote store is healthy, rewrites the remote range in full. The backup
// write always happens, even when the remote write fails.
func (m *Manager) SaveActivities(ctx context.Context, activities []routine.Activity) error {
	if err := m.store.SaveBackup(entityActivities, activities); err != nil {
		m.logger.Warn("failed to back up activities", "error", err)
	}
	if m.tableID == "" || !m.Healthy() {
		return nil
	}
	if err := m.rewriteRange(ctx, RangeActivities, encodeActivities(activities)); err != nil {
		m.remoteFailed("save activities", err)
		return err
	}
	return nil
}

// SaveHistory writes completion history to the backup and the remote range,
// newest first.
func (m *Manager) SaveHistory(ctx context.Context, history []routine.HistoryEntry) error {
	if err := m.store.SaveBackup(entityHistory, history); err != nil {
		m.logger.Warn("failed to back up history", "error", err)
	}
	if m.tableID == "" || !m.Healthy() {
		return nil
	}
	if err := m.rewriteRange(ctx, RangeHistory, encodeHistory(history)); err != nil {
		m.remoteFailed("save history", err)
		return err
	}
	return nil
}

// SaveCursor persists the cursor position to the backup and the remote
// config range.
func (m *Manager) SaveCursor(ctx context.Context, cursor int) error {
	if err := m.store.SaveBackup(entityCursor, cursor); err != nil {
		m.logger.Warn("failed to back up cursor", "error", err)
	}
	if m.tableID == "" || !m.Healthy() {
		return nil
	}
	if err := m.saveConfigValue(ctx, ConfigKeyCursor, strconv.Itoa(cursor)); err != nil {
		m.remoteFailed("save cursor", err)
		return err
	}
	return nil
}

// BackupActivities writes only the local snapshot, never touching the
// remote store. Used before the user's first edit of a session, when a
// remote write could clobber data this session has not yet authored.
func (m *Manager) BackupActivities(activities []routine.Activity) {
	if err := m.store.SaveBackup(entityActivities, activities); err != nil {
		m.logger.Warn("failed to back up activities", "error", err)
	}
}

// BackupHistory writes only the local history snapshot.
func (m *Manager) BackupHistory(history []routine.HistoryEntry) {
	if err := m.store.SaveBackup(entityHistory, history); err != nil {
		m.logger.Warn("failed to back up history", "error", err)
	}
}

// BackupCursor writes only the local cursor snapshot.
func (m *Manager) BackupCursor(cursor int) {
	if err := m.store.SaveBackup(entityCursor, cursor); err != nil {
		m.logger.Warn("failed to back up cursor", "error", err)
	}
}

// UpdateLastSync stamps the config range with the completion time of a
// successful synchronization pass.
func (m *Manager) UpdateLastSync(ctx context.Context, at time.Time) {
	if m.tableID == "" || !m.Healthy() {
		return
	}
	if err := m.saveConfigValue(ctx, ConfigKeyLastSync, at.UTC().Format(time.RFC3339)); err != nil {
		m.logger.Warn("failed to record last sync time", "error", err)
	}
}

// loadConfigValue returns the value for key from the config range, or
// localstore.ErrNotFound when the key is absent.
func (m *Manager) loadConfigValue(ctx context.Context, key string) (string, error) {
	rows, err := m.api.GetValues(ctx, m.tableID, RangeConfig)
	if err != nil {
		return "", err
	}
	for _, row := range decodeConfig(rows) {
		if row.Key == key {
			return row.Value, nil
		}
	}
	return "", localstore.ErrNotFound
}

// saveConfigValue upserts one key in the config range with a full
// read-modify-rewrite, preserving unrelated settings.
func (m *Manager) saveConfigValue(ctx context.Context, key, value string) error {
	rows, err := m.api.GetValues(ctx, m.tableID, RangeConfig)
	if err != nil && sheets.KindOf(err) != sheets.KindNotFound {
		return err
	}

	settings := decodeConfig(rows)
	now := time.Now().UTC().Format(time.RFC3339)
	found := false
	for i := range settings {
		if settings[i].Key == key {
			settings[i].Value = value
			settings[i].Modified = now
			found = true
			break
		}
	}
	if !found {
		settings = append(settings, configRow{Key: key, Value: value, Modified: now})
	}
	return m.rewriteRange(ctx, RangeConfig, encodeConfig(settings))
}

// rewriteRange clears a range and writes the replacement rows. Clearing
// first keeps stale trailing rows from surviving a shrink.
func (m *Manager) rewriteRange(ctx context.Context, rangeName string, rows [][]string) error {
	if err := m.api.ClearValues(ctx, m.tableID, rangeName); err != nil && sheets.KindOf(err) != sheets.KindNotFound {
		return fmt.Errorf("clear %s: %w", rangeName, err)
	}
	if err := m.api.SetValues(ctx, m.tableID, rangeName, rows); err != nil {
		return fmt.Errorf("write %s: %w", rangeName, err)
	}
	return nil
}

func (m *Manager) remoteFailed(op string, err error) {
	m.healthy.Store(false)
	m.logger.Warn("remote store unavailable", "op", op, "kind", sheets.KindOf(err).String(), "error", err)
}
