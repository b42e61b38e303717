package model

import "time"

type ItemType string

const (
	ItemTypeTask    ItemType = "task"
	ItemTypeRoutine ItemType = "routine"
)

// IsValid returns true if the item type is recognized.
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeTask, ItemTypeRoutine:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusCancelled  Status = "cancelled"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
)

// IsValid returns true if the status is recognized.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusComplete, StatusCancelled, StatusBlocked, StatusDeferred:
		return true
	}
	return false
}

// RecurrenceRule names how a routine repeats. The empty rule means the
// routine has no schedule and is never due.
type RecurrenceRule string

const (
	RuleNone      RecurrenceRule = ""
	RuleDaily     RecurrenceRule = "daily"
	RuleWeekly    RecurrenceRule = "weekly"
	RuleMonthly   RecurrenceRule = "monthly"
	RuleBimonthly RecurrenceRule = "bimonthly"
	RuleYearly    RecurrenceRule = "yearly"
	RuleCustom    RecurrenceRule = "custom"
)

// IsValid returns true if the rule is one of the known rules or empty.
func (r RecurrenceRule) IsValid() bool {
	switch r {
	case RuleNone, RuleDaily, RuleWeekly, RuleMonthly, RuleBimonthly, RuleYearly, RuleCustom:
		return true
	}
	return false
}

// Item is a unit of trackable work. Routines carry the recurrence fields;
// RecurrenceDays and RecurrenceMonths hold the raw JSON as stored.
type Item struct {
	ID               int64
	Type             ItemType
	Title            string
	Description      string
	Status           Status
	RecurrenceRule   RecurrenceRule
	RecurrenceDays   *string
	RecurrenceMonths *string
	RecurrenceTime   *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// IsRoutine reports whether the item is a live routine template.
func (i *Item) IsRoutine() bool {
	return i.Type == ItemTypeRoutine && i.DeletedAt == nil
}

type LinkType string

const (
	LinkBlocks    LinkType = "blocks"
	LinkRelated   LinkType = "related"
	LinkDuplicate LinkType = "duplicate"
)

// IsValid returns true if the link type is recognized.
func (t LinkType) IsValid() bool {
	switch t {
	case LinkBlocks, LinkRelated, LinkDuplicate:
		return true
	}
	return false
}

// ItemLink is a directed edge. For LinkBlocks, FromID blocks ToID.
type ItemLink struct {
	ID        int64
	FromID    int64
	ToID      int64
	Type      LinkType
	CreatedAt time.Time
}

// LinkFilter selects links. Zero fields match everything; Touching
// matches links whose either end is the given item.
type LinkFilter struct {
	FromID   int64
	ToID     int64
	Touching int64
	Type     LinkType
}

// RoutineCompletion records that a routine occurrence was done.
// CompletedDate is a calendar date formatted as YYYY-MM-DD.
type RoutineCompletion struct {
	ID            int64
	RoutineID     int64
	CompletedDate string
	Notes         string
	CompletedAt   time.Time
}

// RoutineSkip records that a routine occurrence will not be done.
type RoutineSkip struct {
	ID        int64
	RoutineID int64
	SkipDate  string
	Notes     string
	SkippedAt time.Time
}

// Activity is an audit log entry attached to an item.
type Activity struct {
	ID        int64
	ItemID    int64
	Action    string
	Detail    string
	OldValue  string
	NewValue  string
	CreatedBy string
	CreatedAt time.Time
}

// Activity actions written by the routine and graph services.
const (
	ActionStatusChanged      = "status_changed"
	ActionBlockerAdded       = "blocker_added"
	ActionBlockerRemoved     = "blocker_removed"
	ActionLinkAdded          = "link_added"
	ActionLinkRemoved        = "link_removed"
	ActionAutoUnblocked      = "auto_unblocked"
	ActionRoutineCompleted   = "routine_completed"
	ActionRoutineSkipped     = "routine_skipped"
	ActionRoutineUncompleted = "routine_uncompleted"
	ActionRoutineUnskipped   = "routine_unskipped"
	ActionRoutineCaughtUp    = "routine_caught_up"
)
