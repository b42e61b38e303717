// Package routine answers which routines are due or overdue and records
// completions and skips, including bulk catch-up over missed occurrences.
//
// Every operation takes an explicit as-of date; the engine never reads the
// wall clock to decide what "today" is.
package routine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/baiirun/tend/internal/logging"
	"github.com/baiirun/tend/internal/model"
	"github.com/baiirun/tend/internal/recurrence"
)

// OverdueWindow is how many days before the as-of date are checked for
// missed occurrences.
const OverdueWindow = 30

// Store is the persistence the engine needs. Date arguments are
// YYYY-MM-DD strings and ranges are half-open [from, to).
type Store interface {
	FindItem(ctx context.Context, id int64) (*model.Item, error)
	ListRoutines(ctx context.Context) ([]model.Item, error)

	InsertCompletion(ctx context.Context, c *model.RoutineCompletion) (bool, error)
	FindCompletions(ctx context.Context, routineID int64, from, to string) ([]model.RoutineCompletion, error)
	DeleteCompletions(ctx context.Context, routineID int64, from, to string) (int64, error)
	CountCompletions(ctx context.Context, routineID int64) (int, error)
	LastCompletion(ctx context.Context, routineID int64) (*model.RoutineCompletion, error)

	InsertSkip(ctx context.Context, s *model.RoutineSkip) (bool, error)
	FindSkips(ctx context.Context, routineID int64, from, to string) ([]model.RoutineSkip, error)
	DeleteSkips(ctx context.Context, routineID int64, from, to string) (int64, error)
	CountSkips(ctx context.Context, routineID int64) (int, error)

	AppendActivity(ctx context.Context, a *model.Activity) error
}

// Options configures an Engine.
type Options struct {
	// Actor is recorded as created_by on activity entries.
	Actor string
	// Location is the calendar used to turn timestamps such as an item's
	// creation time into dates. Nil means time.Local.
	Location *time.Location
	// ReportNoOccurrence makes NextDue return recurrence.ErrNoOccurrence
	// when nothing is due within recurrence.ScanLimit days, instead of
	// falling back to the start date.
	ReportNoOccurrence bool
	// Now stamps completion, skip and activity rows. It is never used to
	// pick a date. Defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

// Engine evaluates and records routine occurrences.
type Engine struct {
	store Store
	opts  Options
	log   *zap.Logger
}

// New returns an Engine over store.
func New(store Store, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store: store,
		opts:  opts,
		log:   logging.OrNop(opts.Logger).Named("routine"),
	}
}

// Today returns the calendar date of now in the engine's location.
func (e *Engine) Today(now time.Time) recurrence.Date {
	return recurrence.DateOf(now.In(e.opts.Location))
}

// createdOn returns the calendar date a routine was created.
func (e *Engine) createdOn(item *model.Item) recurrence.Date {
	return recurrence.DateOf(item.CreatedAt.In(e.opts.Location))
}

// findRoutine returns the live routine with id, or nil.
func (e *Engine) findRoutine(ctx context.Context, id int64) (*model.Item, error) {
	item, err := e.store.FindItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.IsRoutine() {
		return nil, nil
	}
	return item, nil
}

func notFoundMessage(id int64) string {
	return fmt.Sprintf("routine %d not found", id)
}

// nextDue applies the exhausted-scan policy. ok is false only when
// ReportNoOccurrence is set and nothing is due in the scan window.
func (e *Engine) nextDue(spec recurrence.Spec, from recurrence.Date) (recurrence.Date, bool) {
	next, ok := recurrence.NextOccurrence(spec, from)
	if !ok && !e.opts.ReportNoOccurrence {
		return from, true
	}
	return next, ok
}

// NextDue returns the first due date of a routine on or after from.
func (e *Engine) NextDue(ctx context.Context, routineID int64, from recurrence.Date) (recurrence.Date, error) {
	item, err := e.findRoutine(ctx, routineID)
	if err != nil {
		return recurrence.Date{}, err
	}
	if item == nil {
		return recurrence.Date{}, fmt.Errorf("routine %d: %w", routineID, model.ErrNotFound)
	}
	spec, err := recurrence.SpecFor(item)
	if err != nil {
		return recurrence.Date{}, fmt.Errorf("routine %d: %w", routineID, err)
	}
	next, ok := e.nextDue(spec, from)
	if !ok {
		return recurrence.Date{}, fmt.Errorf("routine %d: %w", routineID, recurrence.ErrNoOccurrence)
	}
	return next, nil
}

func (e *Engine) record(ctx context.Context, itemID int64, action, detail, newValue string) error {
	return e.store.AppendActivity(ctx, &model.Activity{
		ItemID:    itemID,
		Action:    action,
		Detail:    detail,
		NewValue:  newValue,
		CreatedBy: e.opts.Actor,
		CreatedAt: e.opts.Now(),
	})
}

// dateSet collects YYYY-MM-DD strings for membership checks.
type dateSet map[string]struct{}

func (s dateSet) has(d recurrence.Date) bool {
	_, ok := s[d.String()]
	return ok
}

// coveredDates returns the dates in [from, to) that already have a
// completion or a skip.
func (e *Engine) coveredDates(ctx context.Context, routineID int64, from, to recurrence.Date) (done, skipped dateSet, err error) {
	completions, err := e.store.FindCompletions(ctx, routineID, from.String(), to.String())
	if err != nil {
		return nil, nil, err
	}
	skips, err := e.store.FindSkips(ctx, routineID, from.String(), to.String())
	if err != nil {
		return nil, nil, err
	}

	done = make(dateSet, len(completions))
	for _, c := range completions {
		done[c.CompletedDate] = struct{}{}
	}
	skipped = make(dateSet, len(skips))
	for _, s := range skips {
		skipped[s.SkipDate] = struct{}{}
	}
	return done, skipped, nil
}
