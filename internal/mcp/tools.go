package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ganot/dayloop/internal/routine"
)

// activityView is the wire shape of an activity in tool results.
type activityView struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Days   []string `json:"days"`
	Time   string   `json:"time,omitempty"`
	Locked bool     `json:"locked,omitempty"`
}

func viewOf(a routine.Activity) activityView {
	days := make([]string, len(a.Days))
	for i, d := range a.Days {
		days[i] = string(d)
	}
	return activityView{ID: a.ID, Name: a.Name, Days: days, Time: a.Time, Locked: a.Locked}
}

func viewsOf(activities []routine.Activity) []activityView {
	out := make([]activityView, len(activities))
	for i, a := range activities {
		out[i] = viewOf(a)
	}
	return out
}

// historyView is the wire shape of a history entry in tool results.
type historyView struct {
	ID           string `json:"id"`
	ActivityName string `json:"activityName"`
	Timestamp    string `json:"timestamp"`
	Skipped      bool   `json:"skipped"`
}

func historyViewOf(e routine.HistoryEntry) historyView {
	return historyView{
		ID:           e.ID,
		ActivityName: e.ActivityName,
		Timestamp:    e.Timestamp.Format(time.RFC3339),
		Skipped:      e.Skipped,
	}
}

func parseDayList(tokens []string) []routine.Day {
	days := make([]routine.Day, len(tokens))
	for i, tok := range tokens {
		days[i] = routine.Day(strings.ToLower(strings.TrimSpace(tok)))
	}
	return days
}

func requireConfirm(confirm bool, action string) error {
	if !confirm {
		return fmt.Errorf("%s is destructive; call again with confirm=true", action)
	}
	return nil
}

type emptyInput struct{}

type currentActivityOutput struct {
	Activity   *activityView `json:"activity,omitempty"`
	Position   int           `json:"position"`
	TodayCount int           `json:"todayCount"`
	Message    string        `json:"message,omitempty"`
}

type advanceOutput struct {
	Recorded *activityView `json:"recorded,omitempty"`
	Next     *activityView `json:"next,omitempty"`
	Message  string        `json:"message,omitempty"`
}

type listActivitiesInput struct {
	TodayOnly bool `json:"todayOnly,omitempty" jsonschema:"only return activities scheduled today"`
}

type listActivitiesOutput struct {
	Activities []activityView `json:"activities"`
}

type addActivityInput struct {
	Name string   `json:"name" jsonschema:"activity display name"`
	Days []string `json:"days" jsonschema:"weekdays (mon..sun) the activity is scheduled on"`
	Time string   `json:"time,omitempty" jsonschema:"optional suggested time, 24-hour HH:MM"`
}

type updateActivityInput struct {
	ID   string   `json:"id" jsonschema:"activity id"`
	Name string   `json:"name,omitempty" jsonschema:"new name (omit to keep)"`
	Days []string `json:"days,omitempty" jsonschema:"new weekday list (omit to keep)"`
	Time *string  `json:"time,omitempty" jsonschema:"new suggested time, empty string to clear (omit to keep)"`
}

type deleteActivityInput struct {
	ID      string `json:"id" jsonschema:"activity id"`
	Confirm bool   `json:"confirm,omitempty" jsonschema:"must be true to delete"`
}

type reorderInput struct {
	From int `json:"from" jsonschema:"current position of the activity"`
	To   int `json:"to" jsonschema:"target position"`
}

type importInput struct {
	Activities []routine.ImportRecord `json:"activities" jsonschema:"replacement activity list"`
	Confirm    bool                   `json:"confirm,omitempty" jsonschema:"must be true; import replaces every existing activity"`
}

type exportOutput struct {
	Activities []routine.ImportRecord `json:"activities"`
}

type listHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum entries to return, newest first (0 for all)"`
}

type listHistoryOutput struct {
	Entries []historyView `json:"entries"`
}

type updateHistoryInput struct {
	ID        string `json:"id" jsonschema:"history entry id"`
	Timestamp string `json:"timestamp,omitempty" jsonschema:"new timestamp, RFC 3339 (omit to keep)"`
	Skipped   *bool  `json:"skipped,omitempty" jsonschema:"new skipped flag (omit to keep)"`
}

type deleteHistoryInput struct {
	ID      string `json:"id" jsonschema:"history entry id"`
	Confirm bool   `json:"confirm,omitempty" jsonschema:"must be true to delete"`
}

type confirmInput struct {
	Confirm bool `json:"confirm,omitempty" jsonschema:"must be true"`
}

type statusOutput struct {
	State         string `json:"state"`
	Edited        bool   `json:"editedThisSession"`
	ActivityCount int    `json:"activityCount"`
	HistoryCount  int    `json:"historyCount"`
	Cursor        int    `json:"cursor"`
	LastSync      string `json:"lastSync,omitempty"`
}

type messageOutput struct {
	Message string `json:"message"`
}

func registerTools(server *sdkmcp.Server, svc RoutineService, now func() time.Time) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_current_activity",
		Description: "Get the activity the cursor points at in today's schedule",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, currentActivityOutput, error) {
		t := now()
		today := svc.TodayActivities(t)
		if len(today) == 0 {
			return nil, currentActivityOutput{Message: "no activities scheduled today"}, nil
		}
		current := svc.CurrentActivity(t)
		v := viewOf(*current)
		pos := 0
		for i, a := range today {
			if a.ID == current.ID {
				pos = i
				break
			}
		}
		return nil, currentActivityOutput{Activity: &v, Position: pos, TodayCount: len(today)}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "complete_activity",
		Description: "Mark the current activity as done and advance to the next one",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, advanceOutput, error) {
		return advance(ctx, svc, now(), false)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "skip_activity",
		Description: "Skip the current activity and advance to the next one",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, advanceOutput, error) {
		return advance(ctx, svc, now(), true)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_activities",
		Description: "List the activity schedule, optionally filtered to today",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in listActivitiesInput) (*sdkmcp.CallToolResult, listActivitiesOutput, error) {
		if in.TodayOnly {
			return nil, listActivitiesOutput{Activities: viewsOf(svc.TodayActivities(now()))}, nil
		}
		return nil, listActivitiesOutput{Activities: viewsOf(svc.Activities())}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "add_activity",
		Description: "Add a new activity to the schedule",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in addActivityInput) (*sdkmcp.CallToolResult, activityView, error) {
		a, err := svc.AddActivity(ctx, in.Name, parseDayList(in.Days), in.Time, now())
		if err != nil {
			return nil, activityView{}, err
		}
		return nil, viewOf(a), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_activity",
		Description: "Edit an activity's name, days, or time. Locked activities cannot be edited",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in updateActivityInput) (*sdkmcp.CallToolResult, activityView, error) {
		var days []routine.Day
		if in.Days != nil {
			days = parseDayList(in.Days)
		}
		a, err := svc.UpdateActivity(ctx, in.ID, in.Name, days, in.Time, now())
		if err != nil {
			return nil, activityView{}, err
		}
		return nil, viewOf(a), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_activity",
		Description: "Delete an activity. Locked activities cannot be deleted. Requires confirm=true",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in deleteActivityInput) (*sdkmcp.CallToolResult, messageOutput, error) {
		if err := requireConfirm(in.Confirm, "delete_activity"); err != nil {
			return nil, messageOutput{}, err
		}
		if err := svc.DeleteActivity(ctx, in.ID); err != nil {
			return nil, messageOutput{}, err
		}
		return nil, messageOutput{Message: "activity deleted"}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "reorder_activities",
		Description: "Move an activity to a new position in the schedule",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in reorderInput) (*sdkmcp.CallToolResult, listActivitiesOutput, error) {
		if err := svc.ReorderActivities(ctx, in.From, in.To); err != nil {
			return nil, listActivitiesOutput{}, err
		}
		return nil, listActivitiesOutput{Activities: viewsOf(svc.Activities())}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "import_activities",
		Description: "Replace the entire schedule with an imported activity list. Requires confirm=true",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in importInput) (*sdkmcp.CallToolResult, listActivitiesOutput, error) {
		if err := requireConfirm(in.Confirm, "import_activities"); err != nil {
			return nil, listActivitiesOutput{}, err
		}
		imported := svc.ImportActivities(ctx, in.Activities)
		return nil, listActivitiesOutput{Activities: viewsOf(imported)}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "export_activities",
		Description: "Export the schedule as a portable activity list",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, exportOutput, error) {
		return nil, exportOutput{Activities: svc.ExportActivities()}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_history",
		Description: "List completion history, newest first",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in listHistoryInput) (*sdkmcp.CallToolResult, listHistoryOutput, error) {
		history := svc.History()
		if in.Limit > 0 && in.Limit < len(history) {
			history = history[:in.Limit]
		}
		entries := make([]historyView, len(history))
		for i, e := range history {
			entries[i] = historyViewOf(e)
		}
		return nil, listHistoryOutput{Entries: entries}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_history_entry",
		Description: "Edit a history entry's timestamp or skipped flag",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in updateHistoryInput) (*sdkmcp.CallToolResult, historyView, error) {
		var ts *time.Time
		if in.Timestamp != "" {
			parsed, err := time.Parse(time.RFC3339, in.Timestamp)
			if err != nil {
				return nil, historyView{}, fmt.Errorf("timestamp must be RFC 3339: %w", err)
			}
			ts = &parsed
		}
		entry, err := svc.UpdateHistoryEntry(ctx, in.ID, ts, in.Skipped)
		if err != nil {
			return nil, historyView{}, err
		}
		return nil, historyViewOf(entry), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_history_entry",
		Description: "Delete one history entry. Requires confirm=true",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in deleteHistoryInput) (*sdkmcp.CallToolResult, messageOutput, error) {
		if err := requireConfirm(in.Confirm, "delete_history_entry"); err != nil {
			return nil, messageOutput{}, err
		}
		if err := svc.DeleteHistoryEntry(ctx, in.ID); err != nil {
			return nil, messageOutput{}, err
		}
		return nil, messageOutput{Message: "history entry deleted"}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "clear_history",
		Description: "Delete all history entries. Requires confirm=true",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in confirmInput) (*sdkmcp.CallToolResult, messageOutput, error) {
		if err := requireConfirm(in.Confirm, "clear_history"); err != nil {
			return nil, messageOutput{}, err
		}
		svc.ClearHistory(ctx)
		return nil, messageOutput{Message: "history cleared"}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sync_now",
		Description: "Push the current state to the remote store immediately",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, statusOutput, error) {
		if err := svc.SyncNow(ctx, now()); err != nil {
			return nil, statusOutput{}, fmt.Errorf("sync failed: %w", err)
		}
		return nil, statusViewOf(svc.Status()), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "reconnect",
		Description: "Retry the remote connection after falling back to offline mode",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, statusOutput, error) {
		if err := svc.Reconnect(ctx, now()); err != nil {
			return nil, statusOutput{}, fmt.Errorf("reconnect failed: %w", err)
		}
		return nil, statusViewOf(svc.Status()), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_status",
		Description: "Report sync state, edit flag, and data counts",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, statusOutput, error) {
		return nil, statusViewOf(svc.Status()), nil
	})
}

func advance(ctx context.Context, svc RoutineService, now time.Time, skipped bool) (*sdkmcp.CallToolResult, advanceOutput, error) {
	var recorded *routine.Activity
	if skipped {
		recorded = svc.Skip(ctx, now)
	} else {
		recorded = svc.Complete(ctx, now)
	}
	if recorded == nil {
		return nil, advanceOutput{Message: "no activities scheduled today"}, nil
	}

	out := advanceOutput{}
	v := viewOf(*recorded)
	out.Recorded = &v
	if next := svc.CurrentActivity(now); next != nil {
		nv := viewOf(*next)
		out.Next = &nv
	}
	return nil, out, nil
}

func statusViewOf(s routine.Status) statusOutput {
	out := statusOutput{
		State:         s.State.String(),
		Edited:        s.Edited,
		ActivityCount: s.ActivityCount,
		HistoryCount:  s.HistoryCount,
		Cursor:        s.Cursor,
	}
	if !s.LastSync.IsZero() {
		out.LastSync = s.LastSync.Format(time.RFC3339)
	}
	return out
}
