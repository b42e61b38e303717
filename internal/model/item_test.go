package model

import (
	"testing"
	"time"
)

func TestItemType_IsValid(t *testing.T) {
	tests := []struct {
		itemType ItemType
		valid    bool
	}{
		{ItemTypeTask, true},
		{ItemTypeRoutine, true},
		{ItemType("task"), true},
		{ItemType("routine"), true},
		{ItemType(""), false},
		{ItemType("epic"), false},
		{ItemType("Task"), false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(string(tt.itemType), func(t *testing.T) {
			if got := tt.itemType.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	tests := []struct {
		status Status
		valid  bool
	}{
		{StatusPending, true},
		{StatusInProgress, true},
		{StatusComplete, true},
		{StatusCancelled, true},
		{StatusBlocked, true},
		{StatusDeferred, true},
		{Status(""), false},
		{Status("done"), false},
		{Status("open"), false},
		{Status("Pending"), false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestRecurrenceRule_IsValid(t *testing.T) {
	tests := []struct {
		rule  RecurrenceRule
		valid bool
	}{
		{RuleNone, true},
		{RuleDaily, true},
		{RuleWeekly, true},
		{RuleMonthly, true},
		{RuleBimonthly, true},
		{RuleYearly, true},
		{RuleCustom, true},
		{RecurrenceRule("hourly"), false},
		{RecurrenceRule("Daily"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.rule), func(t *testing.T) {
			if got := tt.rule.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestLinkType_IsValid(t *testing.T) {
	for _, lt := range []LinkType{LinkBlocks, LinkRelated, LinkDuplicate} {
		if !lt.IsValid() {
			t.Errorf("%q should be valid", lt)
		}
	}
	if LinkType("depends").IsValid() {
		t.Error("unknown link type should be invalid")
	}
}

func TestItem_IsRoutine(t *testing.T) {
	deleted := time.Now()

	routine := Item{Type: ItemTypeRoutine}
	if !routine.IsRoutine() {
		t.Error("expected live routine to be a routine")
	}

	routine.DeletedAt = &deleted
	if routine.IsRoutine() {
		t.Error("soft-deleted routine should not count as a routine")
	}

	task := Item{Type: ItemTypeTask}
	if task.IsRoutine() {
		t.Error("task should not be a routine")
	}
}
