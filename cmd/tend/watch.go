package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/baiirun/tend/internal/tui"
)

func newWatchCmd(c *cli) *cobra.Command {
	var (
		schedule string
		now      bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print overdue routines on a cron schedule",
		Long: `Print overdue routines on a cron schedule until interrupted.
The schedule is a standard five-field cron expression and defaults to watch.schedule
from the config file. Nothing is written to the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if schedule == "" {
				schedule = a.cfg.Watch.Schedule
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return watch(ctx, c, a, cmd.OutOrStdout(), schedule, now)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression (default from config)")
	cmd.Flags().BoolVar(&now, "now", false, "also report once immediately")
	return cmd
}

// watch runs the overdue report on schedule until ctx is done. Each run
// reads the clock afresh unless --as-of pins the date.
func watch(ctx context.Context, c *cli, a *app, out io.Writer, schedule string, immediately bool) error {
	report := func() {
		today := a.today
		if c.asOf == "" {
			today = a.engine.Today(c.now())
		}
		overdue, err := a.engine.OverdueRoutines(ctx, today)
		if err != nil {
			a.log.Error("overdue report failed", zap.Error(err))
			return
		}
		fmt.Fprintf(out, "[%s] ", c.now().In(a.loc).Format(time.DateTime))
		if err := printOverdue(out, c.json, overdue, today); err != nil {
			a.log.Error("failed to print report", zap.Error(err))
		}
	}

	scheduler := cron.New(cron.WithLocation(a.loc))
	if _, err := scheduler.AddFunc(schedule, report); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	if immediately {
		report()
	}

	scheduler.Start()
	a.log.Info("watching", zap.String("schedule", schedule))
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}

func newTUICmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive board",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			now := c.now
			if c.asOf != "" {
				pinned := a.today.Start(a.loc).Add(12 * time.Hour)
				now = func() time.Time { return pinned }
			}
			return tui.Run(a.engine, a.graph, now)
		},
	}
}
