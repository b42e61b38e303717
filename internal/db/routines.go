package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/baiirun/tend/internal/model"
)

// occurrenceTable describes one of the two per-date routine record tables.
// Completions and skips share a shape and differ only in column names.
type occurrenceTable struct {
	name    string
	dateCol string
	atCol   string
}

var (
	completions = occurrenceTable{name: "routine_completions", dateCol: "completed_date", atCol: "completed_at"}
	skips       = occurrenceTable{name: "routine_skips", dateCol: "skip_date", atCol: "skipped_at"}
)

type occurrenceRow struct {
	ID        int64
	RoutineID int64
	Date      string
	Notes     string
	At        time.Time
}

// insert is best-effort: a row already present for (routine, date) is left
// alone and inserted reports false.
func (t occurrenceTable) insert(ctx context.Context, q querier, r *occurrenceRow) (bool, error) {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	result, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO `+t.name+` (routine_id, `+t.dateCol+`, notes, `+t.atCol+`)
		VALUES (?, ?, ?, ?)`,
		r.RoutineID, r.Date, r.Notes, r.At)
	if err != nil {
		return false, fmt.Errorf("failed to insert into %s: %w", t.name, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}
	r.ID, err = result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to read %s id: %w", t.name, err)
	}
	return true, nil
}

// find returns rows for routineID with from <= date < to, ordered by date.
func (t occurrenceTable) find(ctx context.Context, q querier, routineID int64, from, to string) ([]occurrenceRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, routine_id, `+t.dateCol+`, notes, `+t.atCol+`
		FROM `+t.name+`
		WHERE routine_id = ? AND `+t.dateCol+` >= ? AND `+t.dateCol+` < ?
		ORDER BY `+t.dateCol+`, id`,
		routineID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []occurrenceRow
	for rows.Next() {
		var r occurrenceRow
		if err := rows.Scan(&r.ID, &r.RoutineID, &r.Date, &r.Notes, &r.At); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", t.name, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t occurrenceTable) delete(ctx context.Context, q querier, routineID int64, from, to string) (int64, error) {
	result, err := q.ExecContext(ctx, `
		DELETE FROM `+t.name+`
		WHERE routine_id = ? AND `+t.dateCol+` >= ? AND `+t.dateCol+` < ?`,
		routineID, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", t.name, err)
	}
	return result.RowsAffected()
}

func (t occurrenceTable) count(ctx context.Context, q querier, routineID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.name+` WHERE routine_id = ?`, routineID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.name, err)
	}
	return n, nil
}

func (t occurrenceTable) last(ctx context.Context, q querier, routineID int64) (*occurrenceRow, error) {
	var r occurrenceRow
	err := q.QueryRowContext(ctx, `
		SELECT id, routine_id, `+t.dateCol+`, notes, `+t.atCol+`
		FROM `+t.name+`
		WHERE routine_id = ?
		ORDER BY `+t.dateCol+` DESC, id DESC
		LIMIT 1`, routineID).Scan(&r.ID, &r.RoutineID, &r.Date, &r.Notes, &r.At)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last %s: %w", t.name, err)
	}
	return &r, nil
}

func toCompletion(r occurrenceRow) model.RoutineCompletion {
	return model.RoutineCompletion{ID: r.ID, RoutineID: r.RoutineID, CompletedDate: r.Date, Notes: r.Notes, CompletedAt: r.At}
}

func toSkip(r occurrenceRow) model.RoutineSkip {
	return model.RoutineSkip{ID: r.ID, RoutineID: r.RoutineID, SkipDate: r.Date, Notes: r.Notes, SkippedAt: r.At}
}

// InsertCompletion records a completion unless one already exists for the
// same routine and date. It reports whether a row was written and sets
// c.ID when it was.
func (db *DB) InsertCompletion(ctx context.Context, c *model.RoutineCompletion) (bool, error) {
	r := occurrenceRow{RoutineID: c.RoutineID, Date: c.CompletedDate, Notes: c.Notes, At: c.CompletedAt}
	ok, err := completions.insert(ctx, db.q, &r)
	if ok {
		c.ID, c.CompletedAt = r.ID, r.At
	}
	return ok, err
}

// FindCompletions returns completions with from <= date < to.
// Dates are YYYY-MM-DD strings.
func (db *DB) FindCompletions(ctx context.Context, routineID int64, from, to string) ([]model.RoutineCompletion, error) {
	rows, err := completions.find(ctx, db.q, routineID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]model.RoutineCompletion, 0, len(rows))
	for _, r := range rows {
		out = append(out, toCompletion(r))
	}
	return out, nil
}

// DeleteCompletions removes completions with from <= date < to.
func (db *DB) DeleteCompletions(ctx context.Context, routineID int64, from, to string) (int64, error) {
	return completions.delete(ctx, db.q, routineID, from, to)
}

// CountCompletions returns the total number of completions for a routine.
func (db *DB) CountCompletions(ctx context.Context, routineID int64) (int, error) {
	return completions.count(ctx, db.q, routineID)
}

// LastCompletion returns the completion with the latest date, or nil.
func (db *DB) LastCompletion(ctx context.Context, routineID int64) (*model.RoutineCompletion, error) {
	r, err := completions.last(ctx, db.q, routineID)
	if err != nil || r == nil {
		return nil, err
	}
	c := toCompletion(*r)
	return &c, nil
}

// InsertSkip records a skip unless one already exists for the same routine
// and date.
func (db *DB) InsertSkip(ctx context.Context, s *model.RoutineSkip) (bool, error) {
	r := occurrenceRow{RoutineID: s.RoutineID, Date: s.SkipDate, Notes: s.Notes, At: s.SkippedAt}
	ok, err := skips.insert(ctx, db.q, &r)
	if ok {
		s.ID, s.SkippedAt = r.ID, r.At
	}
	return ok, err
}

// FindSkips returns skips with from <= date < to.
func (db *DB) FindSkips(ctx context.Context, routineID int64, from, to string) ([]model.RoutineSkip, error) {
	rows, err := skips.find(ctx, db.q, routineID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]model.RoutineSkip, 0, len(rows))
	for _, r := range rows {
		out = append(out, toSkip(r))
	}
	return out, nil
}

// DeleteSkips removes skips with from <= date < to.
func (db *DB) DeleteSkips(ctx context.Context, routineID int64, from, to string) (int64, error) {
	return skips.delete(ctx, db.q, routineID, from, to)
}

// CountSkips returns the total number of skips for a routine.
func (db *DB) CountSkips(ctx context.Context, routineID int64) (int, error) {
	return skips.count(ctx, db.q, routineID)
}
