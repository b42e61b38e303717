package graph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/baiirun/tend/internal/db"
	"github.com/baiirun/tend/internal/model"
)

func setupTestManager(t *testing.T, opts Options) (*Manager, *db.DB) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := d.Init(); err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if opts.Actor == "" {
		opts.Actor = "test"
	}
	return NewSQL(d, opts), d
}

func createItem(t *testing.T, d *db.DB, title string, status model.Status) *model.Item {
	t.Helper()
	item := &model.Item{Type: model.ItemTypeTask, Title: title, Status: status}
	if err := d.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	return item
}

func statusOf(t *testing.T, d *db.DB, id int64) model.Status {
	t.Helper()
	item, err := d.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to get item %d: %v", id, err)
	}
	return item.Status
}

func countBlocks(t *testing.T, d *db.DB, from, to int64) int {
	t.Helper()
	n, err := d.CountLinks(context.Background(), model.LinkFilter{FromID: from, ToID: to, Type: model.LinkBlocks})
	if err != nil {
		t.Fatalf("failed to count links: %v", err)
	}
	return n
}

func TestAddBlocker(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	x := createItem(t, d, "Ship release", model.StatusPending)
	y := createItem(t, d, "Write changelog", model.StatusPending)

	link, err := m.AddBlocker(ctx, x.ID, y.ID)
	if err != nil {
		t.Fatalf("failed to add blocker: %v", err)
	}
	if link.FromID != y.ID || link.ToID != x.ID || link.Type != model.LinkBlocks {
		t.Errorf("unexpected link %+v", link)
	}

	activity, _ := d.GetActivity(ctx, x.ID)
	if len(activity) != 1 || activity[0].Action != model.ActionBlockerAdded {
		t.Errorf("expected one blocker_added entry on blocked item, got %+v", activity)
	}
}

func TestAddBlocker_Duplicate(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	x := createItem(t, d, "X", model.StatusPending)
	y := createItem(t, d, "Y", model.StatusPending)

	if _, err := m.AddBlocker(ctx, x.ID, y.ID); err != nil {
		t.Fatalf("failed to add blocker: %v", err)
	}
	_, err := m.AddBlocker(ctx, x.ID, y.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if n := countBlocks(t, d, y.ID, x.ID); n != 1 {
		t.Errorf("edge count = %d, want 1", n)
	}

	// The failed call must not leave an activity entry behind
	activity, _ := d.GetActivity(ctx, x.ID)
	if len(activity) != 1 {
		t.Errorf("activity entries = %d, want 1", len(activity))
	}
}

func TestAddBlocker_Self(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	x := createItem(t, d, "X", model.StatusPending)

	_, err := m.AddBlocker(context.Background(), x.ID, x.ID)
	if !errors.Is(err, ErrSelfReference) {
		t.Fatalf("expected ErrSelfReference, got %v", err)
	}
	if n := countBlocks(t, d, x.ID, x.ID); n != 0 {
		t.Errorf("self edge written")
	}
}

func TestAddBlocker_NotFound(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	x := createItem(t, d, "X", model.StatusPending)
	gone := createItem(t, d, "Gone", model.StatusPending)
	if err := d.SoftDeleteItem(ctx, gone.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	for _, blocker := range []int64{999, gone.ID} {
		if _, err := m.AddBlocker(ctx, x.ID, blocker); !errors.Is(err, ErrNotFound) {
			t.Errorf("blocker %d: expected ErrNotFound, got %v", blocker, err)
		}
	}
	if _, err := m.AddBlocker(ctx, 999, x.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing item, got %v", err)
	}
}

func TestAddItem_WithBlockers(t *testing.T) {
	at := time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC)
	m, d := setupTestManager(t, Options{Now: func() time.Time { return at }})
	ctx := context.Background()
	a := createItem(t, d, "Draft", model.StatusPending)
	b := createItem(t, d, "Review", model.StatusPending)

	item := &model.Item{Type: model.ItemTypeTask, Title: "Publish"}
	if err := m.AddItem(ctx, item, []int64{a.ID, b.ID}); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected item ID to be assigned")
	}
	if got := statusOf(t, d, item.ID); got != model.StatusBlocked {
		t.Errorf("status = %s, want blocked", got)
	}
	if countBlocks(t, d, a.ID, item.ID) != 1 || countBlocks(t, d, b.ID, item.ID) != 1 {
		t.Error("expected both blocks links")
	}

	stored, _ := d.GetItem(ctx, item.ID)
	if !stored.CreatedAt.Equal(at) {
		t.Errorf("created_at = %v, want %v", stored.CreatedAt, at)
	}
	links, _ := d.FindLinks(ctx, model.LinkFilter{ToID: item.ID})
	for _, l := range links {
		if !l.CreatedAt.Equal(at) {
			t.Errorf("link created_at = %v, want %v", l.CreatedAt, at)
		}
	}
	activity, _ := d.GetActivity(ctx, item.ID)
	if len(activity) != 2 {
		t.Fatalf("expected 2 blocker_added entries, got %+v", activity)
	}
	for _, e := range activity {
		if !e.CreatedAt.Equal(at) {
			t.Errorf("activity created_at = %v, want %v", e.CreatedAt, at)
		}
	}
}

func TestAddItem_FailedBlockerWritesNothing(t *testing.T) {
	tests := []struct {
		name      string
		blockedBy func(a, b *model.Item) []int64
		want      error
	}{
		{"missing blocker", func(a, b *model.Item) []int64 { return []int64{a.ID, 999} }, ErrNotFound},
		{"deleted blocker", func(a, b *model.Item) []int64 { return []int64{b.ID} }, ErrNotFound},
		{"duplicate blocker", func(a, b *model.Item) []int64 { return []int64{a.ID, a.ID} }, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, d := setupTestManager(t, Options{})
			ctx := context.Background()
			a := createItem(t, d, "A", model.StatusPending)
			b := createItem(t, d, "B", model.StatusPending)
			if err := d.SoftDeleteItem(ctx, b.ID); err != nil {
				t.Fatal(err)
			}

			item := &model.Item{Type: model.ItemTypeTask, Title: "Orphan"}
			err := m.AddItem(ctx, item, tt.blockedBy(a, b))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if item.ID != 0 {
				t.Errorf("item ID = %d after failed add", item.ID)
			}

			items, err := d.ListItems(ctx, db.ItemFilter{})
			if err != nil {
				t.Fatal(err)
			}
			if len(items) != 1 || items[0].ID != a.ID {
				t.Errorf("expected only the blocker to remain, got %+v", items)
			}
			if n := countBlocks(t, d, a.ID, 0); n != 0 {
				t.Errorf("expected no links, got %d", n)
			}
		})
	}
}

func TestCycles(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted by default", func(t *testing.T) {
		m, d := setupTestManager(t, Options{})
		a := createItem(t, d, "A", model.StatusPending)
		b := createItem(t, d, "B", model.StatusPending)
		if _, err := m.AddBlocker(ctx, b.ID, a.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := m.AddBlocker(ctx, a.ID, b.ID); err != nil {
			t.Errorf("expected cycle to be accepted, got %v", err)
		}
	})

	t.Run("rejected when configured", func(t *testing.T) {
		m, d := setupTestManager(t, Options{RejectCycles: true})
		a := createItem(t, d, "A", model.StatusPending)
		b := createItem(t, d, "B", model.StatusPending)
		c := createItem(t, d, "C", model.StatusPending)

		// A blocks B blocks C
		if _, err := m.AddBlocker(ctx, b.ID, a.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := m.AddBlocker(ctx, c.ID, b.ID); err != nil {
			t.Fatal(err)
		}

		_, err := m.AddBlocker(ctx, a.ID, c.ID)
		if !errors.Is(err, ErrCycle) {
			t.Fatalf("expected ErrCycle, got %v", err)
		}
		if n := countBlocks(t, d, c.ID, a.ID); n != 0 {
			t.Error("cyclic edge written")
		}

		// Related links never form cycles
		if _, err := m.AddLink(ctx, c.ID, a.ID, model.LinkRelated); err != nil {
			t.Errorf("related link rejected: %v", err)
		}
	})
}

func TestRemoveBlocker(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	x := createItem(t, d, "X", model.StatusPending)
	y := createItem(t, d, "Y", model.StatusPending)
	if _, err := m.AddBlocker(ctx, x.ID, y.ID); err != nil {
		t.Fatal(err)
	}

	deleted, err := m.RemoveBlocker(ctx, x.ID, y.ID)
	if err != nil || !deleted {
		t.Fatalf("expected deleted=true, got %v, %v", deleted, err)
	}

	deleted, err = m.RemoveBlocker(ctx, x.ID, y.ID)
	if err != nil || deleted {
		t.Fatalf("expected idempotent deleted=false, got %v, %v", deleted, err)
	}

	activity, _ := d.GetActivity(ctx, x.ID)
	if len(activity) != 2 {
		t.Errorf("activity entries = %d, want 2", len(activity))
	}
}

func TestCompleteItem_SingleHop(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	a := createItem(t, d, "A", model.StatusInProgress)
	b := createItem(t, d, "B", model.StatusBlocked)
	if _, err := m.AddBlocker(ctx, b.ID, a.ID); err != nil {
		t.Fatal(err)
	}

	change, err := m.CompleteItem(ctx, a.ID)
	if err != nil {
		t.Fatalf("failed to complete: %v", err)
	}
	if change.OldStatus != model.StatusInProgress || change.NewStatus != model.StatusComplete {
		t.Errorf("unexpected change %+v", change)
	}
	if len(change.Unblocked) != 1 || change.Unblocked[0].ID != b.ID {
		t.Fatalf("expected B unblocked, got %+v", change.Unblocked)
	}
	if countBlocks(t, d, a.ID, b.ID) != 0 {
		t.Error("edge not removed")
	}
	if s := statusOf(t, d, b.ID); s != model.StatusPending {
		t.Errorf("B status = %s, want pending", s)
	}
	if s := statusOf(t, d, a.ID); s != model.StatusComplete {
		t.Errorf("A status = %s, want complete", s)
	}

	activity, _ := d.GetActivity(ctx, b.ID)
	last := activity[len(activity)-1]
	if last.Action != model.ActionAutoUnblocked {
		t.Errorf("last action on B = %s, want %s", last.Action, model.ActionAutoUnblocked)
	}
}

func TestCompleteItem_MultiBlocker(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	a := createItem(t, d, "A", model.StatusPending)
	b := createItem(t, d, "B", model.StatusPending)
	c := createItem(t, d, "C", model.StatusBlocked)
	if _, err := m.AddBlocker(ctx, c.ID, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddBlocker(ctx, c.ID, b.ID); err != nil {
		t.Fatal(err)
	}

	change, err := m.CompleteItem(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(change.Unblocked) != 0 {
		t.Errorf("expected nothing unblocked, got %+v", change.Unblocked)
	}
	if countBlocks(t, d, a.ID, c.ID) != 0 || countBlocks(t, d, b.ID, c.ID) != 1 {
		t.Error("expected only A->C removed")
	}
	if s := statusOf(t, d, c.ID); s != model.StatusBlocked {
		t.Errorf("C status = %s, want blocked", s)
	}

	change, err = m.CompleteItem(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(change.Unblocked) != 1 || change.Unblocked[0].ID != c.ID {
		t.Errorf("expected C unblocked, got %+v", change.Unblocked)
	}
	if s := statusOf(t, d, c.ID); s != model.StatusPending {
		t.Errorf("C status = %s, want pending", s)
	}
}

func TestCompleteItem_StatusMismatch(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	a := createItem(t, d, "A", model.StatusPending)
	dep := createItem(t, d, "D", model.StatusDeferred)
	if _, err := m.AddBlocker(ctx, dep.ID, a.ID); err != nil {
		t.Fatal(err)
	}

	change, err := m.CompleteItem(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(change.Unblocked) != 0 {
		t.Errorf("expected no unblocked items, got %+v", change.Unblocked)
	}
	if countBlocks(t, d, a.ID, dep.ID) != 0 {
		t.Error("edge should be removed regardless of dependent status")
	}
	if s := statusOf(t, d, dep.ID); s != model.StatusDeferred {
		t.Errorf("D status = %s, want deferred", s)
	}
}

func TestCompleteItem_OneHopOnly(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	a := createItem(t, d, "A", model.StatusPending)
	b := createItem(t, d, "B", model.StatusBlocked)
	c := createItem(t, d, "C", model.StatusBlocked)
	if _, err := m.AddBlocker(ctx, b.ID, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddBlocker(ctx, c.ID, b.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := m.CompleteItem(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if s := statusOf(t, d, b.ID); s != model.StatusPending {
		t.Errorf("B status = %s, want pending", s)
	}
	if s := statusOf(t, d, c.ID); s != model.StatusBlocked {
		t.Errorf("C status = %s, want blocked", s)
	}

	change, err := m.UpdateStatus(ctx, b.ID, model.StatusComplete)
	if err != nil {
		t.Fatal(err)
	}
	if len(change.Unblocked) != 1 || change.Unblocked[0].ID != c.ID {
		t.Errorf("expected C unblocked by completing B, got %+v", change.Unblocked)
	}
}

func TestCompleteItem_NotFound(t *testing.T) {
	m, _ := setupTestManager(t, Options{})
	if _, err := m.CompleteItem(context.Background(), 12); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	x := createItem(t, d, "X", model.StatusPending)

	change, err := m.UpdateStatus(ctx, x.ID, model.StatusInProgress)
	if err != nil {
		t.Fatal(err)
	}
	if change.OldStatus != model.StatusPending || change.NewStatus != model.StatusInProgress {
		t.Errorf("unexpected change %+v", change)
	}

	// Same status is a no-op
	if _, err := m.UpdateStatus(ctx, x.ID, model.StatusInProgress); err != nil {
		t.Fatal(err)
	}
	activity, _ := d.GetActivity(ctx, x.ID)
	if len(activity) != 1 {
		t.Errorf("activity entries = %d, want 1", len(activity))
	}
	if activity[0].OldValue != "pending" || activity[0].NewValue != "in_progress" {
		t.Errorf("unexpected activity %+v", activity[0])
	}

	if _, err := m.UpdateStatus(ctx, x.ID, "bogus"); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestLinks(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	a := createItem(t, d, "A", model.StatusPending)
	b := createItem(t, d, "B", model.StatusPending)
	c := createItem(t, d, "C", model.StatusBlocked)

	if _, err := m.AddLink(ctx, a.ID, b.ID, model.LinkRelated); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddLink(ctx, c.ID, a.ID, model.LinkDuplicate); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddLink(ctx, a.ID, c.ID, model.LinkBlocks); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddLink(ctx, a.ID, a.ID, model.LinkRelated); !errors.Is(err, ErrSelfReference) {
		t.Errorf("expected ErrSelfReference, got %v", err)
	}
	if _, err := m.AddLink(ctx, a.ID, b.ID, "parent"); err == nil {
		t.Error("expected error for unknown link type")
	}

	links, err := m.Links(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 3 {
		t.Fatalf("links = %d, want 3", len(links))
	}

	// Completing A drops only its blocks link
	if _, err := m.CompleteItem(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	links, _ = m.Links(ctx, a.ID)
	if len(links) != 2 {
		t.Errorf("links after completion = %d, want 2", len(links))
	}

	deleted, err := m.RemoveLink(ctx, a.ID, b.ID, model.LinkRelated)
	if err != nil || !deleted {
		t.Errorf("expected related link removed, got %v, %v", deleted, err)
	}
	deleted, _ = m.RemoveLink(ctx, a.ID, b.ID, model.LinkRelated)
	if deleted {
		t.Error("second removal should report false")
	}
}

func TestBlockersDependentsReady(t *testing.T) {
	m, d := setupTestManager(t, Options{})
	ctx := context.Background()
	a := createItem(t, d, "A", model.StatusPending)
	b := createItem(t, d, "B", model.StatusPending)
	c := createItem(t, d, "C", model.StatusPending)
	if _, err := m.AddBlocker(ctx, c.ID, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddBlocker(ctx, c.ID, b.ID); err != nil {
		t.Fatal(err)
	}

	blockers, _ := m.Blockers(ctx, c.ID)
	if len(blockers) != 2 {
		t.Errorf("blockers = %d, want 2", len(blockers))
	}
	deps, _ := m.Dependents(ctx, a.ID)
	if len(deps) != 1 || deps[0].ID != c.ID {
		t.Errorf("dependents = %+v, want [C]", deps)
	}

	ready, _ := m.Ready(ctx)
	for _, item := range ready {
		if item.ID == c.ID {
			t.Error("blocked item reported ready")
		}
	}
	if len(ready) != 2 {
		t.Errorf("ready = %d, want 2", len(ready))
	}
}
