package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/baiirun/tend/internal/model"
)

// UpdateStatus sets an item's status. Moving to complete runs the same
// cascade as CompleteItem.
func (m *Manager) UpdateStatus(ctx context.Context, id int64, status model.Status) (*StatusChange, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid status: %s", status)
	}
	if status == model.StatusComplete {
		return m.CompleteItem(ctx, id)
	}

	var change *StatusChange
	err := m.store.WithTx(ctx, func(s Store) error {
		var err error
		change, _, err = m.setStatus(ctx, s, id, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// CompleteItem marks an item complete and removes every blocks link it
// owns. Each direct dependent left with no blockers whose status is
// exactly blocked moves to pending. The cascade goes one hop: dependents
// of the released items are not touched. Everything runs in one
// transaction.
func (m *Manager) CompleteItem(ctx context.Context, id int64) (*StatusChange, error) {
	var change *StatusChange
	err := m.store.WithTx(ctx, func(s Store) error {
		var (
			item *model.Item
			err  error
		)
		change, item, err = m.setStatus(ctx, s, id, model.StatusComplete)
		if err != nil {
			return err
		}
		change.Unblocked, err = m.cascade(ctx, s, item)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("item completed", zap.Int64("item", id), zap.Int("unblocked", len(change.Unblocked)))
	return change, nil
}

func (m *Manager) setStatus(ctx context.Context, s Store, id int64, status model.Status) (*StatusChange, *model.Item, error) {
	item, err := m.mustFind(ctx, s, id)
	if err != nil {
		return nil, nil, err
	}

	change := &StatusChange{ItemID: id, OldStatus: item.Status, NewStatus: status}
	if item.Status == status {
		return change, item, nil
	}

	if err := s.UpdateStatus(ctx, id, status); err != nil {
		return nil, nil, err
	}
	err = m.record(ctx, s, model.Activity{
		ItemID:   id,
		Action:   model.ActionStatusChanged,
		Detail:   fmt.Sprintf("%s -> %s", item.Status, status),
		OldValue: string(item.Status),
		NewValue: string(status),
	})
	if err != nil {
		return nil, nil, err
	}
	return change, item, nil
}

func (m *Manager) cascade(ctx context.Context, s Store, done *model.Item) ([]model.Item, error) {
	id := done.ID
	links, err := s.FindLinks(ctx, model.LinkFilter{FromID: id, Type: model.LinkBlocks})
	if err != nil {
		return nil, err
	}

	unblocked := []model.Item{}
	for _, l := range links {
		if _, err := s.DeleteLinks(ctx, model.LinkFilter{FromID: id, ToID: l.ToID, Type: model.LinkBlocks}); err != nil {
			return nil, err
		}

		remaining, err := s.CountLinks(ctx, model.LinkFilter{ToID: l.ToID, Type: model.LinkBlocks})
		if err != nil {
			return nil, err
		}
		if remaining > 0 {
			continue
		}

		dep, err := s.FindItem(ctx, l.ToID)
		if err != nil {
			return nil, err
		}
		if dep == nil || dep.Status != model.StatusBlocked {
			continue
		}

		if err := s.UpdateStatus(ctx, dep.ID, model.StatusPending); err != nil {
			return nil, err
		}
		err = m.record(ctx, s, model.Activity{
			ItemID:   dep.ID,
			Action:   model.ActionAutoUnblocked,
			Detail:   fmt.Sprintf("auto-unblocked: %s was completed", done.Title),
			OldValue: string(model.StatusBlocked),
			NewValue: string(model.StatusPending),
		})
		if err != nil {
			return nil, err
		}

		dep.Status = model.StatusPending
		unblocked = append(unblocked, *dep)
		m.log.Debug("dependent unblocked", zap.Int64("item", dep.ID), zap.Int64("blocker", id))
	}
	return unblocked, nil
}
