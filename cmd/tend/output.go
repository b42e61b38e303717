package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/baiirun/tend/internal/model"
	"github.com/baiirun/tend/internal/recurrence"
	"github.com/baiirun/tend/internal/routine"
)

// ItemJSON is the JSON shape of an item.
type ItemJSON struct {
	ID               int64     `json:"id"`
	Type             string    `json:"type"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Status           string    `json:"status"`
	RecurrenceRule   string    `json:"recurrence_rule,omitempty"`
	RecurrenceDays   *string   `json:"recurrence_days,omitempty"`
	RecurrenceMonths *string   `json:"recurrence_months,omitempty"`
	RecurrenceTime   *string   `json:"recurrence_time,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toItemJSON(item model.Item) ItemJSON {
	return ItemJSON{
		ID:               item.ID,
		Type:             string(item.Type),
		Title:            item.Title,
		Description:      item.Description,
		Status:           string(item.Status),
		RecurrenceRule:   string(item.RecurrenceRule),
		RecurrenceDays:   item.RecurrenceDays,
		RecurrenceMonths: item.RecurrenceMonths,
		RecurrenceTime:   item.RecurrenceTime,
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
	}
}

func toItemsJSON(items []model.Item) []ItemJSON {
	out := make([]ItemJSON, 0, len(items))
	for _, item := range items {
		out = append(out, toItemJSON(item))
	}
	return out
}

// LinkJSON is the JSON shape of a link.
type LinkJSON struct {
	ID     int64  `json:"id"`
	FromID int64  `json:"from_id"`
	ToID   int64  `json:"to_id"`
	Type   string `json:"type"`
}

func toLinksJSON(links []model.ItemLink) []LinkJSON {
	out := make([]LinkJSON, 0, len(links))
	for _, l := range links {
		out = append(out, LinkJSON{ID: l.ID, FromID: l.FromID, ToID: l.ToID, Type: string(l.Type)})
	}
	return out
}

// StatusChangeJSON reports a status change and the items it unblocked.
type StatusChangeJSON struct {
	ID        int64      `json:"id"`
	OldStatus string     `json:"old_status"`
	NewStatus string     `json:"new_status"`
	Unblocked []ItemJSON `json:"unblocked"`
}

// RoutineDueJSON is one routine due on a date.
type RoutineDueJSON struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Rule          string  `json:"recurrence_rule"`
	Time          *string `json:"recurrence_time,omitempty"`
	Completed     bool    `json:"completed"`
	CompletionID  int64   `json:"completion_id,omitempty"`
	LastCompleted string  `json:"last_completed,omitempty"`
}

// OverdueJSON is one routine with missed occurrences.
type OverdueJSON struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	OverdueDates []string `json:"overdue_dates"`
	DaysOverdue  int      `json:"days_overdue"`
}

func toOverdueJSON(list []routine.OverdueRoutine) []OverdueJSON {
	out := make([]OverdueJSON, 0, len(list))
	for _, o := range list {
		out = append(out, OverdueJSON{
			ID:           o.Routine.ID,
			Title:        o.Routine.Title,
			OverdueDates: dateStrings(o.OverdueDates),
			DaysOverdue:  o.DaysOverdue,
		})
	}
	return out
}

// SummaryJSON describes one routine's record.
type SummaryJSON struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Rule          string   `json:"recurrence_rule"`
	Completions   int      `json:"completions"`
	Skips         int      `json:"skips"`
	LastCompleted string   `json:"last_completed,omitempty"`
	NextDue       string   `json:"next_due"`
	OverdueDates  []string `json:"overdue_dates"`
}

func dateStrings(dates []recurrence.Date) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// relDay renders d relative to today, e.g. "3 days ago".
func relDay(d, today recurrence.Date) string {
	if d.Equal(today) {
		return "today"
	}
	return humanize.RelTime(d.Start(time.UTC), today.Start(time.UTC), "ago", "from now")
}

func statusIcon(s model.Status) string {
	switch s {
	case model.StatusPending:
		return "○"
	case model.StatusInProgress:
		return "◐"
	case model.StatusComplete:
		return "●"
	case model.StatusBlocked:
		return "⊘"
	case model.StatusCancelled:
		return "✗"
	case model.StatusDeferred:
		return "…"
	default:
		return "?"
	}
}

func printItemLine(w io.Writer, item model.Item) {
	line := fmt.Sprintf("%s #%-4d %s", statusIcon(item.Status), item.ID, item.Title)
	if item.Type == model.ItemTypeRoutine && item.RecurrenceRule != "" {
		line += fmt.Sprintf("  (%s)", item.RecurrenceRule)
	}
	fmt.Fprintln(w, line)
}
