package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/baiirun/tend/internal/model"
)

const itemColumns = `id, item_type, title, description, status,
	recurrence_rule, recurrence_days, recurrence_months, recurrence_time,
	created_at, updated_at, deleted_at`

// CreateItem inserts a new item and sets its ID.
// Zero timestamps default to now.
func (db *DB) CreateItem(ctx context.Context, item *model.Item) error {
	if !item.Type.IsValid() {
		return fmt.Errorf("invalid item type: %s", item.Type)
	}
	if item.Status == "" {
		item.Status = model.StatusPending
	}
	if !item.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", item.Status)
	}
	if !item.RecurrenceRule.IsValid() {
		return fmt.Errorf("invalid recurrence rule: %s", item.RecurrenceRule)
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	result, err := db.q.ExecContext(ctx, `
		INSERT INTO items (item_type, title, description, status,
			recurrence_rule, recurrence_days, recurrence_months, recurrence_time,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Type, item.Title, item.Description, item.Status,
		nullString(string(item.RecurrenceRule)), item.RecurrenceDays, item.RecurrenceMonths, item.RecurrenceTime,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read item id: %w", err)
	}
	item.ID = id
	return nil
}

// GetItem retrieves a non-deleted item by ID.
func (db *DB) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	row := db.q.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items WHERE id = ? AND deleted_at IS NULL`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// FindItem is like GetItem but returns nil, nil when the item is missing.
func (db *DB) FindItem(ctx context.Context, id int64) (*model.Item, error) {
	item, err := db.GetItem(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return item, err
}

// UpdateStatus changes an item's status.
func (db *DB) UpdateStatus(ctx context.Context, id int64, status model.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}

	result, err := db.q.ExecContext(ctx, `
		UPDATE items SET status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetRecurrence replaces a routine's schedule. Nil JSON pointers clear
// the column.
func (db *DB) SetRecurrence(ctx context.Context, id int64, rule model.RecurrenceRule, days, months, at *string) error {
	if !rule.IsValid() {
		return fmt.Errorf("invalid recurrence rule: %s", rule)
	}

	result, err := db.q.ExecContext(ctx, `
		UPDATE items
		SET recurrence_rule = ?, recurrence_days = ?, recurrence_months = ?, recurrence_time = ?,
		    updated_at = ?
		WHERE id = ? AND item_type = 'routine' AND deleted_at IS NULL`,
		nullString(string(rule)), days, months, at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set recurrence: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("routine %d: %w", id, ErrNotFound)
	}
	return nil
}

// SoftDeleteItem marks an item deleted. Links touching the item are
// removed so it no longer blocks anything.
func (db *DB) SoftDeleteItem(ctx context.Context, id int64) error {
	return db.InTx(ctx, func(tx *DB) error {
		now := time.Now()
		result, err := tx.q.ExecContext(ctx, `
			UPDATE items SET deleted_at = ?, updated_at = ?
			WHERE id = ? AND deleted_at IS NULL`,
			now, now, id)
		if err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("item %d: %w", id, ErrNotFound)
		}

		if _, err := tx.q.ExecContext(ctx, `DELETE FROM item_links WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
			return fmt.Errorf("failed to delete links: %w", err)
		}
		return nil
	})
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*model.Item, error) {
	item := &model.Item{}
	var rule, days, months, at sql.NullString
	var deletedAt sql.NullTime
	err := s.Scan(
		&item.ID, &item.Type, &item.Title, &item.Description, &item.Status,
		&rule, &days, &months, &at,
		&item.CreatedAt, &item.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	item.RecurrenceRule = model.RecurrenceRule(rule.String)
	if days.Valid {
		item.RecurrenceDays = &days.String
	}
	if months.Valid {
		item.RecurrenceMonths = &months.String
	}
	if at.Valid {
		item.RecurrenceTime = &at.String
	}
	if deletedAt.Valid {
		item.DeletedAt = &deletedAt.Time
	}
	return item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
