package graph

import (
	"context"

	"github.com/baiirun/tend/internal/db"
)

// sqlStore adapts *db.DB to Store.
type sqlStore struct{ *db.DB }

func (s sqlStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return s.InTx(ctx, func(tx *db.DB) error { return fn(sqlStore{tx}) })
}

// NewSQL returns a Manager backed by a SQLite database.
func NewSQL(d *db.DB, opts Options) *Manager {
	return New(sqlStore{d}, opts)
}
