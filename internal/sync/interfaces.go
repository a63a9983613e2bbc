package sync

import (
	"context"
	"time"

	"github.com/ganot/dayloop/internal/sheets"
)

// RecordAPI is the slice of the remote record store client the manager
// consumes. Retry/backoff lives behind this interface, never in front of it.
type RecordAPI interface {
	CreateTable(ctx context.Context, name string) (*sheets.Table, error)
	GetTable(ctx context.Context, id string) (*sheets.Table, error)
	FindTableByName(ctx context.Context, name string) ([]sheets.Table, error)
	AddRange(ctx context.Context, tableID, rangeName string) error
	GetValues(ctx context.Context, tableID, rangeName string) ([][]string, error)
	SetValues(ctx context.Context, tableID, rangeName string, rows [][]string) error
	ClearValues(ctx context.Context, tableID, rangeName string) error
	BatchGet(ctx context.Context, tableID string, rangeNames []string) ([]sheets.ValueRange, error)
	BatchSet(ctx context.Context, tableID string, data []sheets.ValueRange) error
}

// BackupStore is the slice of the local store the manager consumes: cached
// table identity, per-entity backup snapshots, and the legacy local-only
// data migrated on first-time table creation.
type BackupStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	GetJSON(key string, out any) error
	SaveBackup(entity string, data any) error
	LoadBackup(entity string, out any) (time.Time, error)
	HasLegacyData() bool
	ClearLegacyData() error
}
