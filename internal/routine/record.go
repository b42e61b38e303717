package routine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/baiirun/tend/internal/model"
	"github.com/baiirun/tend/internal/recurrence"
)

// CompleteResult reports a single completion. A missing routine is
// reported through Success and Error rather than a returned error.
type CompleteResult struct {
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	RoutineID        int64  `json:"routine_id"`
	Date             string `json:"date,omitempty"`
	CompletionID     int64  `json:"completion_id,omitempty"`
	AlreadyCompleted bool   `json:"already_completed"`
	AlreadySkipped   bool   `json:"already_skipped,omitempty"`
}

// SkipResult reports a single skip.
type SkipResult struct {
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	RoutineID        int64  `json:"routine_id"`
	Date             string `json:"date,omitempty"`
	SkipID           int64  `json:"skip_id,omitempty"`
	AlreadySkipped   bool   `json:"already_skipped"`
	AlreadyCompleted bool   `json:"already_completed,omitempty"`
}

// RemoveResult reports an uncomplete or unskip.
type RemoveResult struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	RoutineID int64  `json:"routine_id"`
	Date      string `json:"date,omitempty"`
	Deleted   bool   `json:"deleted"`
}

// CompleteToNextDueResult reports a bulk completion catch-up.
type CompleteToNextDueResult struct {
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
	RoutineID      int64    `json:"routine_id"`
	CompletedDates []string `json:"completed_dates"`
	CompletedCount int      `json:"completed_count"`
	NextDue        string   `json:"next_due"`
}

// SkipToNextDueResult reports a bulk skip catch-up.
type SkipToNextDueResult struct {
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
	RoutineID    int64    `json:"routine_id"`
	SkippedDates []string `json:"skipped_dates"`
	SkippedCount int      `json:"skipped_count"`
	NextDue      string   `json:"next_due"`
}

// CompleteRoutine records that a routine was done on date. Completing a
// date twice returns the existing record. A date that was already skipped
// is left as a skip and reported with AlreadySkipped.
func (e *Engine) CompleteRoutine(ctx context.Context, routineID int64, date recurrence.Date, notes string) (*CompleteResult, error) {
	res := &CompleteResult{RoutineID: routineID, Date: date.String()}

	item, err := e.findRoutine(ctx, routineID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		res.Error = notFoundMessage(routineID)
		return res, nil
	}

	from, to := date.String(), date.AddDays(1).String()
	existing, err := e.store.FindCompletions(ctx, routineID, from, to)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		res.Success = true
		res.AlreadyCompleted = true
		res.CompletionID = existing[0].ID
		return res, nil
	}

	skipped, err := e.store.FindSkips(ctx, routineID, from, to)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		res.Success = true
		res.AlreadySkipped = true
		return res, nil
	}

	c := &model.RoutineCompletion{RoutineID: routineID, CompletedDate: from, Notes: notes, CompletedAt: e.opts.Now()}
	inserted, err := e.store.InsertCompletion(ctx, c)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost a race with another writer; report the row that won.
		existing, err := e.store.FindCompletions(ctx, routineID, from, to)
		if err != nil {
			return nil, err
		}
		res.Success = true
		res.AlreadyCompleted = true
		if len(existing) > 0 {
			res.CompletionID = existing[0].ID
		}
		return res, nil
	}

	if err := e.record(ctx, routineID, model.ActionRoutineCompleted, "completed "+from, from); err != nil {
		return nil, err
	}
	e.log.Info("routine completed", zap.Int64("routine", routineID), zap.String("date", from))

	res.Success = true
	res.CompletionID = c.ID
	return res, nil
}

// SkipRoutine records that a routine was deliberately not done on date.
func (e *Engine) SkipRoutine(ctx context.Context, routineID int64, date recurrence.Date, notes string) (*SkipResult, error) {
	res := &SkipResult{RoutineID: routineID, Date: date.String()}

	item, err := e.findRoutine(ctx, routineID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		res.Error = notFoundMessage(routineID)
		return res, nil
	}

	from, to := date.String(), date.AddDays(1).String()
	existing, err := e.store.FindSkips(ctx, routineID, from, to)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		res.Success = true
		res.AlreadySkipped = true
		res.SkipID = existing[0].ID
		return res, nil
	}

	done, err := e.store.FindCompletions(ctx, routineID, from, to)
	if err != nil {
		return nil, err
	}
	if len(done) > 0 {
		res.Success = true
		res.AlreadyCompleted = true
		return res, nil
	}

	s := &model.RoutineSkip{RoutineID: routineID, SkipDate: from, Notes: notes, SkippedAt: e.opts.Now()}
	inserted, err := e.store.InsertSkip(ctx, s)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := e.store.FindSkips(ctx, routineID, from, to)
		if err != nil {
			return nil, err
		}
		res.Success = true
		res.AlreadySkipped = true
		if len(existing) > 0 {
			res.SkipID = existing[0].ID
		}
		return res, nil
	}

	if err := e.record(ctx, routineID, model.ActionRoutineSkipped, "skipped "+from, from); err != nil {
		return nil, err
	}
	e.log.Info("routine skipped", zap.Int64("routine", routineID), zap.String("date", from))

	res.Success = true
	res.SkipID = s.ID
	return res, nil
}

// UncompleteRoutine removes the completion on date, if any.
func (e *Engine) UncompleteRoutine(ctx context.Context, routineID int64, date recurrence.Date) (*RemoveResult, error) {
	return e.remove(ctx, routineID, date, e.store.DeleteCompletions, model.ActionRoutineUncompleted, "uncompleted ")
}

// UnskipRoutine removes the skip on date, if any.
func (e *Engine) UnskipRoutine(ctx context.Context, routineID int64, date recurrence.Date) (*RemoveResult, error) {
	return e.remove(ctx, routineID, date, e.store.DeleteSkips, model.ActionRoutineUnskipped, "unskipped ")
}

type deleteFunc func(ctx context.Context, routineID int64, from, to string) (int64, error)

func (e *Engine) remove(ctx context.Context, routineID int64, date recurrence.Date, del deleteFunc, action, verb string) (*RemoveResult, error) {
	res := &RemoveResult{RoutineID: routineID, Date: date.String()}

	item, err := e.findRoutine(ctx, routineID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		res.Error = notFoundMessage(routineID)
		return res, nil
	}

	n, err := del(ctx, routineID, date.String(), date.AddDays(1).String())
	if err != nil {
		return nil, err
	}
	res.Success = true
	res.Deleted = n > 0
	if !res.Deleted {
		return res, nil
	}

	if err := e.record(ctx, routineID, action, verb+date.String(), date.String()); err != nil {
		return nil, err
	}
	e.log.Info("routine record removed", zap.Int64("routine", routineID), zap.String("action", action))
	return res, nil
}

// CompleteRoutineToNextDue marks every uncovered occurrence between the
// routine's creation date and its next due date as completed.
func (e *Engine) CompleteRoutineToNextDue(ctx context.Context, routineID int64, asOf recurrence.Date) (*CompleteToNextDueResult, error) {
	res := &CompleteToNextDueResult{RoutineID: routineID, CompletedDates: []string{}}

	insert := func(d string) (bool, error) {
		return e.store.InsertCompletion(ctx, &model.RoutineCompletion{RoutineID: routineID, CompletedDate: d, CompletedAt: e.opts.Now()})
	}
	out, err := e.catchUp(ctx, routineID, asOf, insert, "completed")
	if err != nil {
		return nil, err
	}
	if out.notFound {
		res.Error = notFoundMessage(routineID)
		return res, nil
	}

	res.Success = true
	res.CompletedDates = out.dates
	res.CompletedCount = len(out.dates)
	res.NextDue = out.nextDue
	return res, nil
}

// SkipRoutineToNextDue marks every uncovered occurrence between the
// routine's creation date and its next due date as skipped.
func (e *Engine) SkipRoutineToNextDue(ctx context.Context, routineID int64, asOf recurrence.Date) (*SkipToNextDueResult, error) {
	res := &SkipToNextDueResult{RoutineID: routineID, SkippedDates: []string{}}

	insert := func(d string) (bool, error) {
		return e.store.InsertSkip(ctx, &model.RoutineSkip{RoutineID: routineID, SkipDate: d, SkippedAt: e.opts.Now()})
	}
	out, err := e.catchUp(ctx, routineID, asOf, insert, "skipped")
	if err != nil {
		return nil, err
	}
	if out.notFound {
		res.Error = notFoundMessage(routineID)
		return res, nil
	}

	res.Success = true
	res.SkippedDates = out.dates
	res.SkippedCount = len(out.dates)
	res.NextDue = out.nextDue
	return res, nil
}

type catchUpOutcome struct {
	notFound bool
	dates    []string
	nextDue  string
}

// catchUp inserts a record for each due date in [created, nextDue) that
// has neither a completion nor a skip. Dates are written in ascending
// order without a surrounding transaction; rerunning finishes an
// interrupted batch.
func (e *Engine) catchUp(ctx context.Context, routineID int64, asOf recurrence.Date, insert func(date string) (bool, error), verb string) (catchUpOutcome, error) {
	out := catchUpOutcome{dates: []string{}}

	item, err := e.findRoutine(ctx, routineID)
	if err != nil {
		return out, err
	}
	if item == nil {
		out.notFound = true
		return out, nil
	}

	spec, err := recurrence.SpecFor(item)
	if err != nil {
		return out, fmt.Errorf("routine %d: %w", routineID, err)
	}

	end := asOf
	if next, ok := e.nextDue(spec, asOf); ok {
		end = next
		out.nextDue = next.String()
	}

	start := e.createdOn(item)
	if !start.Before(end) {
		return out, nil
	}

	done, skipped, err := e.coveredDates(ctx, routineID, start, end)
	if err != nil {
		return out, err
	}

	for _, d := range recurrence.Occurrences(spec, start, end) {
		if done.has(d) || skipped.has(d) {
			continue
		}
		inserted, err := insert(d.String())
		if err != nil {
			return out, err
		}
		if inserted {
			out.dates = append(out.dates, d.String())
		}
	}

	if len(out.dates) == 0 {
		return out, nil
	}

	detail := fmt.Sprintf("%s %d occurrences through %s", verb, len(out.dates), out.dates[len(out.dates)-1])
	if err := e.record(ctx, routineID, model.ActionRoutineCaughtUp, detail, out.nextDue); err != nil {
		return out, err
	}
	e.log.Info("routine caught up",
		zap.Int64("routine", routineID),
		zap.String("mode", verb),
		zap.Int("count", len(out.dates)),
		zap.String("next_due", out.nextDue))
	return out, nil
}
