package db

import (
	"context"
	"fmt"

	"github.com/baiirun/tend/internal/model"
)

// ItemFilter narrows ListItems. Zero fields match everything.
type ItemFilter struct {
	Type   model.ItemType
	Status model.Status
}

// ListItems returns non-deleted items filtered by type and/or status.
func (db *DB) ListItems(ctx context.Context, filter ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE deleted_at IS NULL`
	args := []any{}

	if filter.Type != "" {
		if !filter.Type.IsValid() {
			return nil, fmt.Errorf("invalid item type: %s", filter.Type)
		}
		query += ` AND item_type = ?`
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		if !filter.Status.IsValid() {
			return nil, fmt.Errorf("invalid status: %s", filter.Status)
		}
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	return db.queryItems(ctx, query, args...)
}

// ListRoutines returns non-deleted routines that have a recurrence rule,
// ordered by recurrence time (unset last) and then title.
func (db *DB) ListRoutines(ctx context.Context) ([]model.Item, error) {
	return db.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE item_type = 'routine'
		  AND deleted_at IS NULL
		  AND recurrence_rule IS NOT NULL
		ORDER BY recurrence_time IS NULL, recurrence_time ASC, title ASC`)
}

// ReadyItems returns actionable tasks: pending or in progress, with no
// incoming blocks edge.
func (db *DB) ReadyItems(ctx context.Context) ([]model.Item, error) {
	return db.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE deleted_at IS NULL
		  AND item_type = 'task'
		  AND status IN ('pending', 'in_progress')
		  AND id NOT IN (
		    SELECT l.to_id FROM item_links l
		    JOIN items b ON l.from_id = b.id
		    WHERE l.link_type = 'blocks' AND b.deleted_at IS NULL
		  )
		ORDER BY status = 'pending', created_at ASC, id ASC`)
}

// Blockers returns the items that block itemID.
func (db *DB) Blockers(ctx context.Context, itemID int64) ([]model.Item, error) {
	return db.queryItems(ctx, `
		SELECT `+prefixed("i")+`
		FROM item_links l
		JOIN items i ON l.from_id = i.id
		WHERE l.to_id = ? AND l.link_type = 'blocks' AND i.deleted_at IS NULL
		ORDER BY l.id`, itemID)
}

// Dependents returns the items blocked by itemID.
func (db *DB) Dependents(ctx context.Context, itemID int64) ([]model.Item, error) {
	return db.queryItems(ctx, `
		SELECT `+prefixed("i")+`
		FROM item_links l
		JOIN items i ON l.to_id = i.id
		WHERE l.from_id = ? AND l.link_type = 'blocks' AND i.deleted_at IS NULL
		ORDER BY l.id`, itemID)
}

// queryItems is a helper to scan item rows.
func (db *DB) queryItems(ctx context.Context, query string, args ...any) ([]model.Item, error) {
	rows, err := db.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func prefixed(alias string) string {
	return alias + `.id, ` + alias + `.item_type, ` + alias + `.title, ` + alias + `.description, ` + alias + `.status, ` +
		alias + `.recurrence_rule, ` + alias + `.recurrence_days, ` + alias + `.recurrence_months, ` + alias + `.recurrence_time, ` +
		alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.deleted_at`
}
