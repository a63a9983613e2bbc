// Package mcp exposes the routine tracker as an MCP server: one tool per
// user action, plus sync and status tools.
package mcp

import (
	"context"
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ganot/dayloop/internal/routine"
)

// RoutineService defines the tracker operations needed by MCP.
type RoutineService interface {
	CurrentActivity(now time.Time) *routine.Activity
	TodayActivities(now time.Time) []routine.Activity
	Activities() []routine.Activity
	Complete(ctx context.Context, now time.Time) *routine.Activity
	Skip(ctx context.Context, now time.Time) *routine.Activity
	AddActivity(ctx context.Context, name string, days []routine.Day, clock string, now time.Time) (routine.Activity, error)
	UpdateActivity(ctx context.Context, id, name string, days []routine.Day, clock *string, now time.Time) (routine.Activity, error)
	DeleteActivity(ctx context.Context, id string) error
	ReorderActivities(ctx context.Context, from, to int) error
	ImportActivities(ctx context.Context, records []routine.ImportRecord) []routine.Activity
	ExportActivities() []routine.ImportRecord
	History() []routine.HistoryEntry
	UpdateHistoryEntry(ctx context.Context, id string, timestamp *time.Time, skipped *bool) (routine.HistoryEntry, error)
	DeleteHistoryEntry(ctx context.Context, id string) error
	ClearHistory(ctx context.Context)
	SyncNow(ctx context.Context, now time.Time) error
	Reconnect(ctx context.Context, now time.Time) error
	Status() routine.Status
}

// Config contains server configuration.
type Config struct {
	Service RoutineService
	Logger  *slog.Logger
	Now     func() time.Time // nil means time.Now
}

const serverInstructions = `Daily routine tracker. The routine is an ordered list of
recurring activities scheduled by weekday; a cursor points at the current
activity within today's schedule. Use get_current_activity to see what is
next, complete_activity or skip_activity to advance, and the activity and
history tools to manage the schedule. Destructive tools (delete, clear,
import) require confirm=true. State syncs to a remote table when
configured; get_status reports connection health and sync_now forces a
push.`

// NewServer creates and configures an MCP server with all tools and
// middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "dayloop",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	registerTools(server, cfg.Service, now)

	return server
}
