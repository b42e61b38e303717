package db

import (
	"context"
	"fmt"
	"time"

	"github.com/baiirun/tend/internal/model"
)

// AppendActivity writes an audit entry for an item.
func (db *DB) AppendActivity(ctx context.Context, a *model.Activity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	result, err := db.q.ExecContext(ctx, `
		INSERT INTO activity (item_id, action, detail, old_value, new_value, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ItemID, a.Action, a.Detail, a.OldValue, a.NewValue, a.CreatedBy, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add activity: %w", err)
	}
	a.ID, _ = result.LastInsertId()
	return nil
}

// GetActivity returns all activity for an item in chronological order.
func (db *DB) GetActivity(ctx context.Context, itemID int64) ([]model.Activity, error) {
	rows, err := db.q.QueryContext(ctx, `
		SELECT id, item_id, action, detail, old_value, new_value, created_by, created_at
		FROM activity WHERE item_id = ?
		ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.ItemID, &a.Action, &a.Detail, &a.OldValue, &a.NewValue, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}
