package recurrence

import (
	"errors"
	"slices"
	"time"

	"github.com/baiirun/tend/internal/model"
)

// ScanLimit bounds the forward search in NextDueDate, in days.
const ScanLimit = 365

// ErrNoOccurrence is returned when no due date exists within ScanLimit days.
var ErrNoOccurrence = errors.New("no occurrence within scan window")

// IsDueOnDate reports whether spec has an occurrence on d.
func IsDueOnDate(spec Spec, d Date) bool {
	switch spec.Rule {
	case model.RuleDaily:
		return true
	case model.RuleWeekly:
		if spec.Weekdays != nil {
			return slices.Contains(spec.Weekdays, d.Weekday())
		}
		return d.Weekday() == time.Monday
	case model.RuleMonthly:
		if spec.MonthDays != nil {
			return slices.Contains(spec.MonthDays, d.Day())
		}
		return d.Day() == 1
	case model.RuleBimonthly:
		if d.Day() != 1 {
			return false
		}
		if spec.Months != nil {
			return slices.Contains(spec.Months, int(d.Month()))
		}
		return d.Month()%2 == 0
	case model.RuleYearly:
		if spec.YearDay == nil {
			return false
		}
		return d.Month() == spec.YearDay.Month && d.Day() == spec.YearDay.Day
	case model.RuleCustom:
		return slices.Contains(spec.Dates, d.String())
	}
	return false
}

// NextOccurrence scans forward from from (inclusive) for at most ScanLimit
// days. ok is false when nothing in the window is due.
func NextOccurrence(spec Spec, from Date) (next Date, ok bool) {
	d := from
	for i := 0; i < ScanLimit; i++ {
		if IsDueOnDate(spec, d) {
			return d, true
		}
		d = d.AddDays(1)
	}
	return from, false
}

// NextDueDate returns the first due date on or after from. When the scan
// window is exhausted it falls back to from itself, so a custom rule whose
// dates are all in the past reads as due today. Use NextOccurrence to tell
// the two cases apart.
func NextDueDate(spec Spec, from Date) Date {
	next, _ := NextOccurrence(spec, from)
	return next
}

// Occurrences returns the due dates in [from, to) in ascending order.
func Occurrences(spec Spec, from, to Date) []Date {
	var out []Date
	for d := from; d.Before(to); d = d.AddDays(1) {
		if IsDueOnDate(spec, d) {
			out = append(out, d)
		}
	}
	return out
}
