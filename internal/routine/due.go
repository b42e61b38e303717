package routine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/baiirun/tend/internal/model"
	"github.com/baiirun/tend/internal/recurrence"
)

// DueRoutine is a routine with an occurrence on the queried date.
type DueRoutine struct {
	Routine      model.Item
	Completed    bool
	CompletionID int64
	// LastCompleted is the most recent completion date; zero if never.
	LastCompleted recurrence.Date
}

// OverdueRoutine lists the missed occurrences of one routine.
type OverdueRoutine struct {
	Routine      model.Item
	OverdueDates []recurrence.Date
	DaysOverdue  int
}

// RoutinesDue returns the routines due on date, in recurrence-time then
// title order, with whether each was completed that day.
func (e *Engine) RoutinesDue(ctx context.Context, date recurrence.Date) ([]DueRoutine, error) {
	routines, err := e.store.ListRoutines(ctx)
	if err != nil {
		return nil, err
	}

	var due []DueRoutine
	for _, r := range routines {
		spec, err := recurrence.SpecFor(&r)
		if err != nil {
			return nil, fmt.Errorf("routine %d: %w", r.ID, err)
		}
		if !recurrence.IsDueOnDate(spec, date) {
			continue
		}

		entry := DueRoutine{Routine: r}
		today, err := e.store.FindCompletions(ctx, r.ID, date.String(), date.AddDays(1).String())
		if err != nil {
			return nil, err
		}
		if len(today) > 0 {
			entry.Completed = true
			entry.CompletionID = today[0].ID
		}

		last, err := e.store.LastCompletion(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			if d, err := recurrence.ParseDate(last.CompletedDate); err == nil {
				entry.LastCompleted = d
			}
		}
		due = append(due, entry)
	}
	return due, nil
}

// OverdueRoutines returns routines with missed occurrences in the
// OverdueWindow days before asOf. asOf itself is due, never overdue, and
// days before a routine's creation date are ignored.
func (e *Engine) OverdueRoutines(ctx context.Context, asOf recurrence.Date) ([]OverdueRoutine, error) {
	routines, err := e.store.ListRoutines(ctx)
	if err != nil {
		return nil, err
	}

	var out []OverdueRoutine
	for _, r := range routines {
		dates, err := e.overdueDates(ctx, &r, asOf)
		if err != nil {
			return nil, err
		}
		if len(dates) == 0 {
			continue
		}
		out = append(out, OverdueRoutine{Routine: r, OverdueDates: dates, DaysOverdue: len(dates)})
	}

	e.log.Debug("overdue scan")
	return out, nil
}

func (e *Engine) overdueDates(ctx context.Context, r *model.Item, asOf recurrence.Date) ([]recurrence.Date, error) {
	spec, err := recurrence.SpecFor(r)
	if err != nil {
		return nil, fmt.Errorf("routine %d: %w", r.ID, err)
	}

	start := asOf.AddDays(-OverdueWindow)
	if created := e.createdOn(r); created.After(start) {
		start = created
	}
	if !start.Before(asOf) {
		return nil, nil
	}

	candidates := recurrence.Occurrences(spec, start, asOf)
	if len(candidates) == 0 {
		return nil, nil
	}

	done, skipped, err := e.coveredDates(ctx, r.ID, start, asOf)
	if err != nil {
		return nil, err
	}

	var dates []recurrence.Date
	for _, d := range candidates {
		if done.has(d) || skipped.has(d) {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// Summary describes one routine's record.
type Summary struct {
	Routine       model.Item
	Completions   int
	Skips         int
	LastCompleted recurrence.Date
	// NextDue is zero when no occurrence exists in the scan window and
	// the engine reports that case.
	NextDue      recurrence.Date
	OverdueDates []recurrence.Date
}

// Summary returns counts, the last completion, the next due date and the
// current overdue dates of a routine.
func (e *Engine) Summary(ctx context.Context, routineID int64, asOf recurrence.Date) (*Summary, error) {
	item, err := e.findRoutine(ctx, routineID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("routine %d: %w", routineID, model.ErrNotFound)
	}

	spec, err := recurrence.SpecFor(item)
	if err != nil {
		return nil, fmt.Errorf("routine %d: %w", routineID, err)
	}

	s := &Summary{Routine: *item}
	if s.Completions, err = e.store.CountCompletions(ctx, routineID); err != nil {
		return nil, err
	}
	if s.Skips, err = e.store.CountSkips(ctx, routineID); err != nil {
		return nil, err
	}

	last, err := e.store.LastCompletion(ctx, routineID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		if d, err := recurrence.ParseDate(last.CompletedDate); err == nil {
			s.LastCompleted = d
		}
	}

	if next, ok := e.nextDue(spec, asOf); ok {
		s.NextDue = next
	}

	if s.OverdueDates, err = e.overdueDates(ctx, item, asOf); err != nil {
		return nil, err
	}
	return s, nil
}

// Entry kinds in a routine history.
const (
	EntryCompleted = "completed"
	EntrySkipped   = "skipped"
)

// HistoryEntry is one completion or skip.
type HistoryEntry struct {
	ID    int64     `json:"id"`
	Date  string    `json:"date"`
	Kind  string    `json:"kind"`
	Notes string    `json:"notes,omitempty"`
	At    time.Time `json:"at"`
}

// History returns the completions and skips of a routine in [from, to),
// merged in date order.
func (e *Engine) History(ctx context.Context, routineID int64, from, to recurrence.Date) ([]HistoryEntry, error) {
	item, err := e.findRoutine(ctx, routineID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("routine %d: %w", routineID, model.ErrNotFound)
	}

	completions, err := e.store.FindCompletions(ctx, routineID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	skips, err := e.store.FindSkips(ctx, routineID, from.String(), to.String())
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(completions)+len(skips))
	for _, c := range completions {
		entries = append(entries, HistoryEntry{ID: c.ID, Date: c.CompletedDate, Kind: EntryCompleted, Notes: c.Notes, At: c.CompletedAt})
	}
	for _, s := range skips {
		entries = append(entries, HistoryEntry{ID: s.ID, Date: s.SkipDate, Kind: EntrySkipped, Notes: s.Notes, At: s.SkippedAt})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })
	return entries, nil
}
