package db

import (
	"context"
	"testing"

	"github.com/baiirun/tend/internal/model"
)

func TestInsertCompletion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	routine := createTestRoutine(t, db, "Walk", model.RuleDaily, nil, nil)

	c := &model.RoutineCompletion{RoutineID: routine.ID, CompletedDate: "2025-01-05", Notes: "done"}
	inserted, err := db.InsertCompletion(ctx, c)
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if !inserted || c.ID == 0 {
		t.Fatalf("expected insert with id, got inserted=%v id=%d", inserted, c.ID)
	}

	// Same date again is ignored
	dup := &model.RoutineCompletion{RoutineID: routine.ID, CompletedDate: "2025-01-05"}
	inserted, err = db.InsertCompletion(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate insert should not error: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should report not inserted")
	}

	n, _ := db.CountCompletions(ctx, routine.ID)
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestFindCompletions_Range(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	routine := createTestRoutine(t, db, "Walk", model.RuleDaily, nil, nil)

	for _, d := range []string{"2025-01-03", "2025-01-01", "2025-01-02", "2025-01-10"} {
		db.InsertCompletion(ctx, &model.RoutineCompletion{RoutineID: routine.ID, CompletedDate: d})
	}

	got, err := db.FindCompletions(ctx, routine.ID, "2025-01-01", "2025-01-04")
	if err != nil {
		t.Fatalf("failed to find: %v", err)
	}
	want := []string{"2025-01-01", "2025-01-02", "2025-01-03"}
	if len(got) != len(want) {
		t.Fatalf("got %d completions, want %d", len(got), len(want))
	}
	for i, d := range want {
		if got[i].CompletedDate != d {
			t.Errorf("completions[%d] = %s, want %s", i, got[i].CompletedDate, d)
		}
	}

	// Single-day window is [d, d+1)
	got, _ = db.FindCompletions(ctx, routine.ID, "2025-01-10", "2025-01-11")
	if len(got) != 1 {
		t.Errorf("expected 1 completion on 2025-01-10, got %d", len(got))
	}
}

func TestDeleteCompletions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	routine := createTestRoutine(t, db, "Walk", model.RuleDaily, nil, nil)
	db.InsertCompletion(ctx, &model.RoutineCompletion{RoutineID: routine.ID, CompletedDate: "2025-01-05"})

	n, err := db.DeleteCompletions(ctx, routine.ID, "2025-01-05", "2025-01-06")
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}

	n, _ = db.DeleteCompletions(ctx, routine.ID, "2025-01-05", "2025-01-06")
	if n != 0 {
		t.Errorf("second delete removed %d, want 0", n)
	}
}

func TestLastCompletion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	routine := createTestRoutine(t, db, "Walk", model.RuleDaily, nil, nil)

	last, err := db.LastCompletion(ctx, routine.ID)
	if err != nil {
		t.Fatalf("failed to get last: %v", err)
	}
	if last != nil {
		t.Errorf("expected nil with no completions, got %+v", last)
	}

	db.InsertCompletion(ctx, &model.RoutineCompletion{RoutineID: routine.ID, CompletedDate: "2025-02-01"})
	db.InsertCompletion(ctx, &model.RoutineCompletion{RoutineID: routine.ID, CompletedDate: "2025-01-15"})

	last, _ = db.LastCompletion(ctx, routine.ID)
	if last == nil || last.CompletedDate != "2025-02-01" {
		t.Errorf("last = %+v, want 2025-02-01", last)
	}
}

func TestSkips(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	routine := createTestRoutine(t, db, "Walk", model.RuleDaily, nil, nil)

	s := &model.RoutineSkip{RoutineID: routine.ID, SkipDate: "2025-01-07", Notes: "sick"}
	inserted, err := db.InsertSkip(ctx, s)
	if err != nil || !inserted {
		t.Fatalf("insert skip: inserted=%v err=%v", inserted, err)
	}

	inserted, _ = db.InsertSkip(ctx, &model.RoutineSkip{RoutineID: routine.ID, SkipDate: "2025-01-07"})
	if inserted {
		t.Error("duplicate skip should be ignored")
	}

	got, _ := db.FindSkips(ctx, routine.ID, "2025-01-01", "2025-02-01")
	if len(got) != 1 || got[0].Notes != "sick" || got[0].ID != s.ID {
		t.Errorf("skips = %+v", got)
	}

	n, _ := db.CountSkips(ctx, routine.ID)
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	deleted, _ := db.DeleteSkips(ctx, routine.ID, "2025-01-07", "2025-01-08")
	if deleted != 1 {
		t.Errorf("deleted %d, want 1", deleted)
	}

	// Completions and skips are separate tables
	db.InsertCompletion(ctx, &model.RoutineCompletion{RoutineID: routine.ID, CompletedDate: "2025-01-07"})
	got, _ = db.FindSkips(ctx, routine.ID, "2025-01-01", "2025-02-01")
	if len(got) != 0 {
		t.Errorf("expected no skips, got %d", len(got))
	}
}
