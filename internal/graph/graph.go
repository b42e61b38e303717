// Package graph manages links between items. Blocks links form a
// dependency graph: completing an item removes the links it owns and
// returns its direct dependents to pending once nothing else blocks them.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/baiirun/tend/internal/logging"
	"github.com/baiirun/tend/internal/model"
)

var (
	ErrSelfReference = errors.New("item cannot link to itself")
	ErrCycle         = errors.New("link would create a cycle")
	ErrNotFound      = model.ErrNotFound
	ErrConflict      = model.ErrConflict
)

// Store is the persistence the manager needs.
type Store interface {
	CreateItem(ctx context.Context, item *model.Item) error
	FindItem(ctx context.Context, id int64) (*model.Item, error)
	UpdateStatus(ctx context.Context, id int64, status model.Status) error

	InsertLink(ctx context.Context, link *model.ItemLink) error
	DeleteLinks(ctx context.Context, f model.LinkFilter) (int64, error)
	FindLinks(ctx context.Context, f model.LinkFilter) ([]model.ItemLink, error)
	CountLinks(ctx context.Context, f model.LinkFilter) (int, error)

	Blockers(ctx context.Context, itemID int64) ([]model.Item, error)
	Dependents(ctx context.Context, itemID int64) ([]model.Item, error)
	ReadyItems(ctx context.Context) ([]model.Item, error)

	AppendActivity(ctx context.Context, a *model.Activity) error

	// WithTx runs fn against a Store bound to a single transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Options configures a Manager.
type Options struct {
	// Actor is recorded as created_by on activity entries.
	Actor string
	// RejectCycles makes AddBlocker and AddLink refuse a blocks link that
	// would close a cycle. Cycles are accepted otherwise and have to be
	// broken by hand.
	RejectCycles bool
	// Now stamps links and activity. Defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

// Manager maintains item links.
type Manager struct {
	store Store
	opts  Options
	log   *zap.Logger
}

// New returns a Manager over store.
func New(store Store, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store: store,
		opts:  opts,
		log:   logging.OrNop(opts.Logger).Named("graph"),
	}
}

// StatusChange describes a status transition and the dependents it
// released.
type StatusChange struct {
	ItemID    int64
	OldStatus model.Status
	NewStatus model.Status
	Unblocked []model.Item
}

func (m *Manager) record(ctx context.Context, s Store, a model.Activity) error {
	a.CreatedBy = m.opts.Actor
	a.CreatedAt = m.opts.Now()
	return s.AppendActivity(ctx, &a)
}

func (m *Manager) mustFind(ctx context.Context, s Store, id int64) (*model.Item, error) {
	item, err := s.FindItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return item, nil
}

// reaches reports whether a chain of blocks links leads from one item to
// another.
func reaches(ctx context.Context, s Store, from, to int64) (bool, error) {
	seen := map[int64]bool{from: true}
	queue := []int64{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		links, err := s.FindLinks(ctx, model.LinkFilter{FromID: id, Type: model.LinkBlocks})
		if err != nil {
			return false, err
		}
		for _, l := range links {
			if l.ToID == to {
				return true, nil
			}
			if !seen[l.ToID] {
				seen[l.ToID] = true
				queue = append(queue, l.ToID)
			}
		}
	}
	return false, nil
}

// insert validates and writes a link. Activity is left to the caller.
func (m *Manager) insert(ctx context.Context, s Store, fromID, toID int64, linkType model.LinkType) (*model.ItemLink, error) {
	if fromID == toID {
		return nil, fmt.Errorf("item %d: %w", fromID, ErrSelfReference)
	}
	if !linkType.IsValid() {
		return nil, fmt.Errorf("invalid link type: %s", linkType)
	}
	if _, err := m.mustFind(ctx, s, fromID); err != nil {
		return nil, err
	}
	if _, err := m.mustFind(ctx, s, toID); err != nil {
		return nil, err
	}

	if linkType == model.LinkBlocks && m.opts.RejectCycles {
		cyclic, err := reaches(ctx, s, toID, fromID)
		if err != nil {
			return nil, err
		}
		if cyclic {
			return nil, fmt.Errorf("%d blocks %d: %w", fromID, toID, ErrCycle)
		}
	}

	link := &model.ItemLink{FromID: fromID, ToID: toID, Type: linkType, CreatedAt: m.opts.Now()}
	if err := s.InsertLink(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// AddItem creates item together with its blockers in one transaction.
// An item with blockers starts out blocked; if any blocker cannot be
// added nothing is written.
func (m *Manager) AddItem(ctx context.Context, item *model.Item, blockedBy []int64) error {
	if len(blockedBy) > 0 {
		item.Status = model.StatusBlocked
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = m.opts.Now()
	}

	err := m.store.WithTx(ctx, func(s Store) error {
		if err := s.CreateItem(ctx, item); err != nil {
			return err
		}
		for _, blocker := range blockedBy {
			if _, err := m.insert(ctx, s, blocker, item.ID, model.LinkBlocks); err != nil {
				return err
			}
			err := m.record(ctx, s, model.Activity{
				ItemID:   item.ID,
				Action:   model.ActionBlockerAdded,
				Detail:   fmt.Sprintf("blocked by #%d", blocker),
				NewValue: fmt.Sprint(blocker),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		item.ID = 0
		return err
	}

	m.log.Info("item added", zap.Int64("item", item.ID), zap.Int("blockers", len(blockedBy)))
	return nil
}

// AddBlocker records that blockerID blocks itemID.
func (m *Manager) AddBlocker(ctx context.Context, itemID, blockerID int64) (*model.ItemLink, error) {
	var link *model.ItemLink
	err := m.store.WithTx(ctx, func(s Store) error {
		var err error
		link, err = m.insert(ctx, s, blockerID, itemID, model.LinkBlocks)
		if err != nil {
			return err
		}
		return m.record(ctx, s, model.Activity{
			ItemID:   itemID,
			Action:   model.ActionBlockerAdded,
			Detail:   fmt.Sprintf("blocked by #%d", blockerID),
			NewValue: fmt.Sprint(blockerID),
		})
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("blocker added", zap.Int64("item", itemID), zap.Int64("blocker", blockerID))
	return link, nil
}

// RemoveBlocker deletes the blocks link from blockerID to itemID. It
// reports whether a link was removed.
func (m *Manager) RemoveBlocker(ctx context.Context, itemID, blockerID int64) (bool, error) {
	var deleted bool
	err := m.store.WithTx(ctx, func(s Store) error {
		n, err := s.DeleteLinks(ctx, model.LinkFilter{FromID: blockerID, ToID: itemID, Type: model.LinkBlocks})
		if err != nil || n == 0 {
			return err
		}
		deleted = true
		return m.record(ctx, s, model.Activity{
			ItemID:   itemID,
			Action:   model.ActionBlockerRemoved,
			Detail:   fmt.Sprintf("no longer blocked by #%d", blockerID),
			OldValue: fmt.Sprint(blockerID),
		})
	})
	if err != nil {
		return false, err
	}
	if deleted {
		m.log.Info("blocker removed", zap.Int64("item", itemID), zap.Int64("blocker", blockerID))
	}
	return deleted, nil
}

// AddLink adds a typed link from fromID to toID. Related and duplicate
// links are annotations with no effect on status.
func (m *Manager) AddLink(ctx context.Context, fromID, toID int64, linkType model.LinkType) (*model.ItemLink, error) {
	var link *model.ItemLink
	err := m.store.WithTx(ctx, func(s Store) error {
		var err error
		link, err = m.insert(ctx, s, fromID, toID, linkType)
		if err != nil {
			return err
		}
		return m.record(ctx, s, model.Activity{
			ItemID:   fromID,
			Action:   model.ActionLinkAdded,
			Detail:   fmt.Sprintf("%s #%d", linkType, toID),
			NewValue: fmt.Sprint(toID),
		})
	})
	if err != nil {
		return nil, err
	}
	m.log.Debug("link added", zap.Int64("from", fromID), zap.Int64("to", toID), zap.String("type", string(linkType)))
	return link, nil
}

// RemoveLink deletes the matching link and reports whether one existed.
func (m *Manager) RemoveLink(ctx context.Context, fromID, toID int64, linkType model.LinkType) (bool, error) {
	if !linkType.IsValid() {
		return false, fmt.Errorf("invalid link type: %s", linkType)
	}

	var deleted bool
	err := m.store.WithTx(ctx, func(s Store) error {
		n, err := s.DeleteLinks(ctx, model.LinkFilter{FromID: fromID, ToID: toID, Type: linkType})
		if err != nil || n == 0 {
			return err
		}
		deleted = true
		return m.record(ctx, s, model.Activity{
			ItemID:   fromID,
			Action:   model.ActionLinkRemoved,
			Detail:   fmt.Sprintf("%s #%d", linkType, toID),
			OldValue: fmt.Sprint(toID),
		})
	})
	return deleted, err
}

// Links returns every link touching itemID.
func (m *Manager) Links(ctx context.Context, itemID int64) ([]model.ItemLink, error) {
	return m.store.FindLinks(ctx, model.LinkFilter{Touching: itemID})
}

// Blockers returns the items blocking itemID.
func (m *Manager) Blockers(ctx context.Context, itemID int64) ([]model.Item, error) {
	return m.store.Blockers(ctx, itemID)
}

// Dependents returns the items itemID blocks.
func (m *Manager) Dependents(ctx context.Context, itemID int64) ([]model.Item, error) {
	return m.store.Dependents(ctx, itemID)
}

// Ready returns tasks that can be worked on now.
func (m *Manager) Ready(ctx context.Context) ([]model.Item, error) {
	return m.store.ReadyItems(ctx)
}
