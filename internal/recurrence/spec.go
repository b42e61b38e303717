// Package recurrence decides when a routine is due.
//
// Everything here is pure: a Spec is parsed once from the stored rule and
// JSON columns, then evaluated against calendar dates. Malformed JSON is a
// *FormatError so callers can tell corrupt data apart from "not due".
package recurrence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baiirun/tend/internal/model"
)

// FormatError reports a recurrence column that could not be interpreted.
type FormatError struct {
	Field string // "recurrence_days" or "recurrence_months"
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// MonthDay is a [month, day] pair for yearly rules.
type MonthDay struct {
	Month time.Month
	Day   int
}

// Spec is a parsed recurrence specification. A nil slice means the
// corresponding JSON column was absent (or an empty list), in which case
// the rule's default applies.
type Spec struct {
	Rule      model.RecurrenceRule
	Weekdays  []time.Weekday // weekly
	MonthDays []int          // monthly
	Months    []int          // bimonthly, 1-based
	YearDay   *MonthDay      // yearly; nil means never due
	Dates     []string       // custom, YYYY-MM-DD
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// WeekdayName returns the lowercase three-letter abbreviation of wd.
func WeekdayName(wd time.Weekday) string {
	return strings.ToLower(wd.String()[:3])
}

// SpecFor parses the recurrence columns of an item.
func SpecFor(item *model.Item) (Spec, error) {
	return ParseSpec(item.RecurrenceRule, item.RecurrenceDays, item.RecurrenceMonths)
}

// ParseSpec builds a Spec from a rule and the raw JSON of the days and
// months columns. Either column may be nil.
func ParseSpec(rule model.RecurrenceRule, daysJSON, monthsJSON *string) (Spec, error) {
	spec := Spec{Rule: rule}

	// Yearly tolerates any shape; the other rules need an array in the
	// column they read.
	usesDays := rule == model.RuleWeekly || rule == model.RuleMonthly || rule == model.RuleCustom
	days, err := decodeList("recurrence_days", daysJSON, usesDays)
	if err != nil {
		return Spec{}, err
	}
	months, err := decodeList("recurrence_months", monthsJSON, rule == model.RuleBimonthly)
	if err != nil {
		return Spec{}, err
	}

	switch rule {
	case model.RuleWeekly:
		for _, raw := range days {
			wd, err := parseWeekday(raw)
			if err != nil {
				return Spec{}, &FormatError{Field: "recurrence_days", Value: *daysJSON, Err: err}
			}
			spec.Weekdays = append(spec.Weekdays, wd)
		}
	case model.RuleMonthly:
		spec.MonthDays, err = decodeInts(days)
		if err != nil {
			return Spec{}, &FormatError{Field: "recurrence_days", Value: *daysJSON, Err: err}
		}
	case model.RuleBimonthly:
		spec.Months, err = decodeInts(months)
		if err != nil {
			return Spec{}, &FormatError{Field: "recurrence_months", Value: *monthsJSON, Err: err}
		}
	case model.RuleYearly:
		// Anything other than a two-integer array leaves YearDay nil: the
		// routine is never due rather than an error.
		if pair, err := decodeInts(days); err == nil && len(pair) == 2 {
			spec.YearDay = &MonthDay{Month: time.Month(pair[0]), Day: pair[1]}
		}
	case model.RuleCustom:
		for _, raw := range days {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return Spec{}, &FormatError{Field: "recurrence_days", Value: *daysJSON, Err: fmt.Errorf("custom dates must be strings: %w", err)}
			}
			spec.Dates = append(spec.Dates, s)
		}
	}

	return spec, nil
}

// decodeList checks that raw is well-formed JSON and splits a JSON array
// into its elements. Null and empty lists yield no elements. Any other
// non-array value is a FormatError when array is set and yields no
// elements otherwise.
func decodeList(field string, raw *string, array bool) ([]json.RawMessage, error) {
	if raw == nil {
		return nil, nil
	}
	trimmed := bytes.TrimSpace([]byte(*raw))
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, &FormatError{Field: field, Value: *raw, Err: errors.New("invalid JSON")}
	}
	if trimmed[0] != '[' {
		if array {
			return nil, &FormatError{Field: field, Value: *raw, Err: errors.New("expected a JSON array")}
		}
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, &FormatError{Field: field, Value: *raw, Err: err}
	}
	return elems, nil
}

func decodeInts(elems []json.RawMessage) ([]int, error) {
	var out []int
	for _, raw := range elems {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("expected integer, got %s", raw)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseWeekday(raw json.RawMessage) (time.Weekday, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		wd, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", name)
		}
		return wd, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("expected weekday name or 0-6, got %s", raw)
	}
	return time.Weekday(n), nil
}
