package db

import (
	"context"
	"fmt"
	"time"

	"github.com/baiirun/tend/internal/model"
)

// LinkFilter matches item_links rows.
type LinkFilter = model.LinkFilter

func linkWhere(f LinkFilter) (string, []any) {
	clause := ` WHERE 1=1`
	args := []any{}
	if f.FromID != 0 {
		clause += ` AND from_id = ?`
		args = append(args, f.FromID)
	}
	if f.ToID != 0 {
		clause += ` AND to_id = ?`
		args = append(args, f.ToID)
	}
	if f.Touching != 0 {
		clause += ` AND (from_id = ? OR to_id = ?)`
		args = append(args, f.Touching, f.Touching)
	}
	if f.Type != "" {
		clause += ` AND link_type = ?`
		args = append(args, f.Type)
	}
	return clause, args
}

// InsertLink adds a directed edge and sets its ID. Both items must exist;
// an identical edge returns ErrConflict. A zero CreatedAt defaults to now.
func (db *DB) InsertLink(ctx context.Context, link *model.ItemLink) error {
	fromID, toID, linkType := link.FromID, link.ToID, link.Type
	if !linkType.IsValid() {
		return fmt.Errorf("invalid link type: %s", linkType)
	}

	// Verify both items exist
	var count int
	err := db.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM items WHERE id IN (?, ?) AND deleted_at IS NULL`,
		fromID, toID).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to verify items: %w", err)
	}
	want := 2
	if fromID == toID {
		want = 1
	}
	if count != want {
		return fmt.Errorf("one or both items not found: %d, %d: %w", fromID, toID, ErrNotFound)
	}

	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	result, err := db.q.ExecContext(ctx, `
		INSERT INTO item_links (from_id, to_id, link_type, created_at)
		VALUES (?, ?, ?, ?)`,
		link.FromID, link.ToID, link.Type, link.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("link %d -%s-> %d: %w", fromID, linkType, toID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to add link: %w", err)
	}

	link.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read link id: %w", err)
	}
	return nil
}

// DeleteLinks removes every link matching f and returns how many were removed.
func (db *DB) DeleteLinks(ctx context.Context, f LinkFilter) (int64, error) {
	where, args := linkWhere(f)
	result, err := db.q.ExecContext(ctx, `DELETE FROM item_links`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete links: %w", err)
	}
	return result.RowsAffected()
}

// FindLinks returns links matching f in insertion order.
func (db *DB) FindLinks(ctx context.Context, f LinkFilter) ([]model.ItemLink, error) {
	where, args := linkWhere(f)
	rows, err := db.q.QueryContext(ctx, `
		SELECT id, from_id, to_id, link_type, created_at
		FROM item_links`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []model.ItemLink
	for rows.Next() {
		var l model.ItemLink
		if err := rows.Scan(&l.ID, &l.FromID, &l.ToID, &l.Type, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// CountLinks returns the number of links matching f.
func (db *DB) CountLinks(ctx context.Context, f LinkFilter) (int, error) {
	where, args := linkWhere(f)
	var count int
	if err := db.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM item_links`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}
