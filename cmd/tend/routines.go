package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/baiirun/tend/internal/recurrence"
	"github.com/baiirun/tend/internal/routine"
)

func newRoutineCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "routine",
		Aliases: []string{"r"},
		Short:   "Work with recurring routines",
		Long: `Work with recurring routines.

Dates default to today in the configured timezone; pass --as-of to pretend it is another day.`,
	}

	cmd.AddCommand(
		newRoutineDueCmd(c),
		newRoutineOverdueCmd(c),
		newRoutineNextCmd(c),
		newRoutineCompleteCmd(c),
		newRoutineSkipCmd(c),
		newRoutineUncompleteCmd(c),
		newRoutineUnskipCmd(c),
		newRoutineCatchupCmd(c),
		newRoutineSummaryCmd(c),
		newRoutineHistoryCmd(c),
	)
	return cmd
}

func newRoutineDueCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "List routines due today",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			due, err := a.engine.RoutinesDue(cmd.Context(), a.today)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.json {
				list := make([]RoutineDueJSON, 0, len(due))
				for _, d := range due {
					entry := RoutineDueJSON{
						ID:           d.Routine.ID,
						Title:        d.Routine.Title,
						Rule:         string(d.Routine.RecurrenceRule),
						Time:         d.Routine.RecurrenceTime,
						Completed:    d.Completed,
						CompletionID: d.CompletionID,
					}
					if !d.LastCompleted.IsZero() {
						entry.LastCompleted = d.LastCompleted.String()
					}
					list = append(list, entry)
				}
				return printJSON(out, list)
			}

			if len(due) == 0 {
				fmt.Fprintf(out, "Nothing due on %s\n", a.today)
				return nil
			}
			fmt.Fprintf(out, "Due %s:\n", a.today)
			for _, d := range due {
				mark := "○"
				if d.Completed {
					mark = "●"
				}
				line := fmt.Sprintf("%s #%-4d %s", mark, d.Routine.ID, d.Routine.Title)
				if d.Routine.RecurrenceTime != nil {
					line += " @ " + *d.Routine.RecurrenceTime
				}
				if !d.Completed && !d.LastCompleted.IsZero() {
					line += "  (last done " + relDay(d.LastCompleted, a.today) + ")"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newRoutineOverdueCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List routines with missed occurrences in the last 30 days",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			overdue, err := a.engine.OverdueRoutines(cmd.Context(), a.today)
			if err != nil {
				return err
			}
			return printOverdue(cmd.OutOrStdout(), c.json, overdue, a.today)
		},
	}
}

func printOverdue(w io.Writer, asJSON bool, overdue []routine.OverdueRoutine, today recurrence.Date) error {
	if asJSON {
		return printJSON(w, toOverdueJSON(overdue))
	}
	if len(overdue) == 0 {
		fmt.Fprintln(w, "Nothing overdue")
		return nil
	}
	for _, o := range overdue {
		first := o.OverdueDates[0]
		fmt.Fprintf(w, "! #%-4d %s  %d missed, oldest %s\n", o.Routine.ID, o.Routine.Title, o.DaysOverdue, relDay(first, today))
	}
	return nil
}

func newRoutineNextCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "next <id>",
		Short: "Show a routine's next due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			next, err := a.engine.NextDue(cmd.Context(), id, a.today)
			out := cmd.OutOrStdout()
			if errors.Is(err, recurrence.ErrNoOccurrence) {
				if c.json {
					return printJSON(out, map[string]any{"routine_id": id, "next_due": nil})
				}
				fmt.Fprintf(out, "#%d has no occurrence in the next %d days\n", id, recurrence.ScanLimit)
				return nil
			}
			if err != nil {
				return err
			}
			if c.json {
				return printJSON(out, map[string]any{"routine_id": id, "next_due": next.String()})
			}
			fmt.Fprintf(out, "#%d next due %s (%s)\n", id, next, relDay(next, a.today))
			return nil
		},
	}
}

// dateArg returns the optional date argument at index i, or today.
func dateArg(args []string, i int, today recurrence.Date) (recurrence.Date, error) {
	if len(args) <= i {
		return today, nil
	}
	d, err := recurrence.ParseDate(args[i])
	if err != nil {
		return recurrence.Date{}, fmt.Errorf("invalid date %q: %w", args[i], err)
	}
	return d, nil
}

// occurrenceCmd builds the complete/skip/uncomplete/unskip commands, which
// all take an id and an optional date.
func occurrenceCmd(c *cli, use, short string, withNotes bool, run func(ctx context.Context, a *app, id int64, date recurrence.Date, notes string) (result any, ok bool, message string, err error)) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   use + " <id> [date]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			date, err := dateArg(args, 1, a.today)
			if err != nil {
				return err
			}

			result, ok, message, err := run(cmd.Context(), a, id, date, notes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if c.json {
				if err := printJSON(out, result); err != nil {
					return err
				}
			} else if ok {
				fmt.Fprintln(out, message)
			}
			if !ok {
				return errors.New(message)
			}
			return nil
		},
	}
	if withNotes {
		cmd.Flags().StringVarP(&notes, "notes", "n", "", "notes to attach")
	}
	return cmd
}

func newRoutineCompleteCmd(c *cli) *cobra.Command {
	return occurrenceCmd(c, "complete", "Mark a routine done for a date", true,
		func(ctx context.Context, a *app, id int64, date recurrence.Date, notes string) (any, bool, string, error) {
			res, err := a.engine.CompleteRoutine(ctx, id, date, notes)
			if err != nil {
				return nil, false, "", err
			}
			switch {
			case !res.Success:
				return res, false, res.Error, nil
			case res.AlreadyCompleted:
				return res, true, fmt.Sprintf("#%d already completed on %s", id, res.Date), nil
			case res.AlreadySkipped:
				return res, true, fmt.Sprintf("#%d was skipped on %s; unskip it first", id, res.Date), nil
			}
			return res, true, fmt.Sprintf("Completed #%d for %s", id, res.Date), nil
		})
}

func newRoutineSkipCmd(c *cli) *cobra.Command {
	return occurrenceCmd(c, "skip", "Skip a routine for a date", true,
		func(ctx context.Context, a *app, id int64, date recurrence.Date, notes string) (any, bool, string, error) {
			res, err := a.engine.SkipRoutine(ctx, id, date, notes)
			if err != nil {
				return nil, false, "", err
			}
			switch {
			case !res.Success:
				return res, false, res.Error, nil
			case res.AlreadySkipped:
				return res, true, fmt.Sprintf("#%d already skipped on %s", id, res.Date), nil
			case res.AlreadyCompleted:
				return res, true, fmt.Sprintf("#%d was completed on %s; uncomplete it first", id, res.Date), nil
			}
			return res, true, fmt.Sprintf("Skipped #%d for %s", id, res.Date), nil
		})
}

func newRoutineUncompleteCmd(c *cli) *cobra.Command {
	return occurrenceCmd(c, "uncomplete", "Remove a routine's completion for a date", false,
		func(ctx context.Context, a *app, id int64, date recurrence.Date, _ string) (any, bool, string, error) {
			res, err := a.engine.UncompleteRoutine(ctx, id, date)
			if err != nil {
				return nil, false, "", err
			}
			return res, res.Success, removeMessage(res, "completion"), nil
		})
}

func newRoutineUnskipCmd(c *cli) *cobra.Command {
	return occurrenceCmd(c, "unskip", "Remove a routine's skip for a date", false,
		func(ctx context.Context, a *app, id int64, date recurrence.Date, _ string) (any, bool, string, error) {
			res, err := a.engine.UnskipRoutine(ctx, id, date)
			if err != nil {
				return nil, false, "", err
			}
			return res, res.Success, removeMessage(res, "skip"), nil
		})
}

func removeMessage(res *routine.RemoveResult, what string) string {
	switch {
	case !res.Success:
		return res.Error
	case res.Deleted:
		return fmt.Sprintf("Removed %s of #%d on %s", what, res.RoutineID, res.Date)
	default:
		return fmt.Sprintf("No %s of #%d on %s", what, res.RoutineID, res.Date)
	}
}

func newRoutineCatchupCmd(c *cli) *cobra.Command {
	var skip bool

	cmd := &cobra.Command{
		Use:   "catchup <id>",
		Short: "Resolve every missed occurrence up to the next due date",
		Long: `Resolve every missed occurrence of a routine, from the day it was created up to
its next due date, as completed (default) or skipped. Dates that already have a
completion or skip are left alone, so running it again does nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var (
				result  any
				success bool
				failure string
				count   int
				next    string
				verb    = "Completed"
			)
			if skip {
				res, err := a.engine.SkipRoutineToNextDue(ctx, id, a.today)
				if err != nil {
					return err
				}
				result, success, failure, count, next = res, res.Success, res.Error, res.SkippedCount, res.NextDue
				verb = "Skipped"
			} else {
				res, err := a.engine.CompleteRoutineToNextDue(ctx, id, a.today)
				if err != nil {
					return err
				}
				result, success, failure, count, next = res, res.Success, res.Error, res.CompletedCount, res.NextDue
			}

			if c.json {
				if err := printJSON(out, result); err != nil {
					return err
				}
			}
			if !success {
				return errors.New(failure)
			}
			if c.json {
				return nil
			}

			fmt.Fprintf(out, "%s %d missed occurrence(s) of #%d\n", verb, count, id)
			if next != "" {
				fmt.Fprintf(out, "Next due %s\n", next)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skip, "skip", false, "record skips instead of completions")
	return cmd
}

func routineSummary(ctx context.Context, a *app, id int64) (*SummaryJSON, error) {
	s, err := a.engine.Summary(ctx, id, a.today)
	if err != nil {
		return nil, err
	}
	out := &SummaryJSON{
		ID:           s.Routine.ID,
		Title:        s.Routine.Title,
		Rule:         string(s.Routine.RecurrenceRule),
		Completions:  s.Completions,
		Skips:        s.Skips,
		OverdueDates: dateStrings(s.OverdueDates),
	}
	if !s.LastCompleted.IsZero() {
		out.LastCompleted = s.LastCompleted.String()
	}
	if !s.NextDue.IsZero() {
		out.NextDue = s.NextDue.String()
	}
	return out, nil
}

func printSummary(w io.Writer, s *SummaryJSON) {
	fmt.Fprintf(w, "Rule:    %s\n", s.Rule)
	fmt.Fprintf(w, "Done:    %d completed, %d skipped\n", s.Completions, s.Skips)
	if s.LastCompleted != "" {
		fmt.Fprintf(w, "Last:    %s\n", s.LastCompleted)
	}
	if s.NextDue != "" {
		fmt.Fprintf(w, "Next:    %s\n", s.NextDue)
	} else {
		fmt.Fprintln(w, "Next:    none within a year")
	}
	if n := len(s.OverdueDates); n > 0 {
		fmt.Fprintf(w, "Overdue: %d (since %s)\n", n, s.OverdueDates[0])
	}
}

func newRoutineSummaryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <id>",
		Short: "Show a routine's completion record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := routineSummary(cmd.Context(), a, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if c.json {
				return printJSON(out, s)
			}
			fmt.Fprintf(out, "#%d %s\n", s.ID, s.Title)
			printSummary(out, s)
			return nil
		},
	}
}

func newRoutineHistoryCmd(c *cli) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "List a routine's recent completions and skips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			to := a.today.AddDays(1)
			entries, err := a.engine.History(cmd.Context(), id, to.AddDays(-days), to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.json {
				return printJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "No history in the last %d days\n", days)
				return nil
			}
			for _, e := range entries {
				mark := "●"
				if e.Kind == routine.EntrySkipped {
					mark = "–"
				}
				line := fmt.Sprintf("%s %s %s", mark, e.Date, e.Kind)
				if e.Notes != "" {
					line += "  " + e.Notes
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "how many days back to show")
	return cmd
}
