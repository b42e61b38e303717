package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/baiirun/tend/internal/config"
	"github.com/baiirun/tend/internal/db"
	"github.com/baiirun/tend/internal/graph"
	"github.com/baiirun/tend/internal/model"
	"github.com/baiirun/tend/internal/recurrence"
)

func newInitCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the database and write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database ready at %s\n", a.cfg.DBPath)

			path := c.configPath
			if path == "" {
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				cfg := config.Default()
				cfg.DBPath = a.cfg.DBPath
				if err := config.Save(path, cfg); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote config to %s\n", path)
			}
			return nil
		},
	}
}

func newAddCmd(c *cli) *cobra.Command {
	var (
		isRoutine   bool
		description string
		rule        string
		days        string
		months      string
		at          string
		blockedBy   []int64
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task or routine",
		Example: `  tend add "Renew passport"
  tend add --routine --rule weekly --days '["mon","thu"]' --at 07:30 "Gym"
  tend add --routine --rule yearly --days '[4,15]' "File taxes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			item := &model.Item{
				Type:        model.ItemTypeTask,
				Title:       strings.Join(args, " "),
				Description: description,
			}
			if rule != "" {
				isRoutine = true
			}
			if isRoutine {
				item.Type = model.ItemTypeRoutine
				item.RecurrenceRule = model.RecurrenceRule(rule)
				if !item.RecurrenceRule.IsValid() {
					return fmt.Errorf("invalid recurrence rule: %s", rule)
				}
				item.RecurrenceDays = optional(days)
				item.RecurrenceMonths = optional(months)
				item.RecurrenceTime = optional(at)
				if _, err := recurrence.SpecFor(item); err != nil {
					return err
				}
			}
			item.CreatedAt = c.now()
			// A back-dated --as-of also back-dates a routine's first day.
			if isRoutine && c.asOf != "" {
				item.CreatedAt = a.today.Start(a.loc)
			}

			if err := a.graph.AddItem(ctx, item, blockedBy); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.json {
				return printJSON(out, toItemJSON(*item))
			}
			fmt.Fprintf(out, "Created %s #%d: %s\n", item.Type, item.ID, item.Title)
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&isRoutine, "routine", "r", false, "create a routine instead of a task")
	f.StringVarP(&description, "description", "d", "", "description")
	f.StringVar(&rule, "rule", "", "recurrence rule: daily, weekly, monthly, bimonthly, yearly, custom")
	f.StringVar(&days, "days", "", "recurrence days as JSON")
	f.StringVar(&months, "months", "", "recurrence months as JSON (bimonthly)")
	f.StringVar(&at, "at", "", "time of day, e.g. 07:30")
	f.Int64SliceVar(&blockedBy, "blocked-by", nil, "ids of items that block this one")
	return cmd
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newListCmd(c *cli) *cobra.Command {
	var itemType, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.db.ListItems(cmd.Context(), db.ItemFilter{
				Type:   model.ItemType(itemType),
				Status: model.Status(status),
			})
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), c.json, items, "No items")
		},
	}
	cmd.Flags().StringVarP(&itemType, "type", "t", "", "filter by type (task, routine)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status")
	return cmd
}

func newReadyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Show tasks ready for work (unblocked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.graph.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), c.json, items, "Nothing ready")
		},
	}
}

func printItems(w io.Writer, asJSON bool, items []model.Item, empty string) error {
	if asJSON {
		return printJSON(w, toItemsJSON(items))
	}
	if len(items) == 0 {
		fmt.Fprintln(w, empty)
		return nil
	}
	for _, item := range items {
		printItemLine(w, item)
	}
	return nil
}

// ShowJSON is the JSON shape of the show command.
type ShowJSON struct {
	Item     ItemJSON     `json:"item"`
	Blockers []ItemJSON   `json:"blockers"`
	Blocks   []ItemJSON   `json:"blocks"`
	Links    []LinkJSON   `json:"links"`
	Routine  *SummaryJSON `json:"routine,omitempty"`
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show item details",
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
			ctx := cmd.Context()

			item, err := a.db.GetItem(ctx, id)
			if err != nil {
				return err
			}
			blockers, err := a.graph.Blockers(ctx, id)
			if err != nil {
				return err
			}
			dependents, err := a.graph.Dependents(ctx, id)
			if err != nil {
				return err
			}
			links, err := a.graph.Links(ctx, id)
			if err != nil {
				return err
			}

			var summary *SummaryJSON
			if item.Type == model.ItemTypeRoutine {
				s, err := routineSummary(ctx, a, id)
				if err != nil {
					return err
				}
				summary = s
			}

			out := cmd.OutOrStdout()
			if c.json {
				return printJSON(out, ShowJSON{
					Item:     toItemJSON(*item),
					Blockers: toItemsJSON(blockers),
					Blocks:   toItemsJSON(dependents),
					Links:    toLinksJSON(links),
					Routine:  summary,
				})
			}

			fmt.Fprintf(out, "#%d %s\n", item.ID, item.Title)
			fmt.Fprintf(out, "Type:    %s\n", item.Type)
			fmt.Fprintf(out, "Status:  %s %s\n", statusIcon(item.Status), item.Status)
			fmt.Fprintf(out, "Created: %s\n", humanize.Time(item.CreatedAt))
			if item.Description != "" {
				fmt.Fprintf(out, "\n%s\n", item.Description)
			}
			if summary != nil {
				printSummary(out, summary)
			}
			if len(blockers) > 0 {
				fmt.Fprintln(out, "\nBlocked by:")
				for _, b := range blockers {
					printItemLine(out, b)
				}
			}
			if len(dependents) > 0 {
				fmt.Fprintln(out, "\nBlocks:")
				for _, d := range dependents {
					printItemLine(out, d)
				}
			}
			other := 0
			for _, l := range links {
				if l.Type != model.LinkBlocks {
					if other == 0 {
						fmt.Fprintln(out, "\nLinks:")
					}
					other++
					fmt.Fprintf(out, "  #%d %s #%d\n", l.FromID, l.Type, l.ToID)
				}
			}
			return nil
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set an item's status",
		Long:  "Set an item's status. Setting complete unblocks dependents that have no other blockers.",
		Args:  cobra.ExactArgs(2),
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

			change, err := a.graph.UpdateStatus(cmd.Context(), id, model.Status(args[1]))
			if err != nil {
				return err
			}
			return printStatusChange(cmd.OutOrStdout(), c.json, change)
		},
	}
}

func newDoneCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark an item complete",
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

			change, err := a.graph.CompleteItem(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printStatusChange(cmd.OutOrStdout(), c.json, change)
		},
	}
}

func printStatusChange(w io.Writer, asJSON bool, change *graph.StatusChange) error {
	if asJSON {
		return printJSON(w, StatusChangeJSON{
			ID:        change.ItemID,
			OldStatus: string(change.OldStatus),
			NewStatus: string(change.NewStatus),
			Unblocked: toItemsJSON(change.Unblocked),
		})
	}
	fmt.Fprintf(w, "#%d: %s -> %s\n", change.ItemID, change.OldStatus, change.NewStatus)
	for _, item := range change.Unblocked {
		fmt.Fprintf(w, "Unblocked #%d %s\n", item.ID, item.Title)
	}
	return nil
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an item and its links",
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

			if err := a.db.SoftDeleteItem(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%d\n", id)
			return nil
		},
	}
}

func newBlockCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "block <id> <blocker-id>",
		Short: "Record that one item blocks another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPair(c, cmd, args, func(ctx context.Context, a *app, id, blocker int64) error {
				if _, err := a.graph.AddBlocker(ctx, id, blocker); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d is now blocked by #%d\n", id, blocker)
				return nil
			})
		},
	}
}

func newUnblockCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <id> <blocker-id>",
		Short: "Remove a blocker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPair(c, cmd, args, func(ctx context.Context, a *app, id, blocker int64) error {
				deleted, err := a.graph.RemoveBlocker(ctx, id, blocker)
				if err != nil {
					return err
				}
				if deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "#%d is no longer blocked by #%d\n", id, blocker)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "#%d was not blocked by #%d\n", id, blocker)
				}
				return nil
			})
		},
	}
}

func newLinkCmd(c *cli) *cobra.Command {
	var linkType string

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Manage links between items",
	}

	add := &cobra.Command{
		Use:   "add <from-id> <to-id>",
		Short: "Link two items",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPair(c, cmd, args, func(ctx context.Context, a *app, from, to int64) error {
				link, err := a.graph.AddLink(ctx, from, to, model.LinkType(linkType))
				if err != nil {
					return err
				}
				if c.json {
					return printJSON(cmd.OutOrStdout(), toLinksJSON([]model.ItemLink{*link})[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked #%d %s #%d\n", from, linkType, to)
				return nil
			})
		},
	}
	add.Flags().StringVarP(&linkType, "type", "t", string(model.LinkRelated), "link type: blocks, related, duplicate")

	rm := &cobra.Command{
		Use:   "rm <from-id> <to-id>",
		Short: "Remove a link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPair(c, cmd, args, func(ctx context.Context, a *app, from, to int64) error {
				deleted, err := a.graph.RemoveLink(ctx, from, to, model.LinkType(linkType))
				if err != nil {
					return err
				}
				if !deleted {
					fmt.Fprintln(cmd.OutOrStdout(), "No such link")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed #%d %s #%d\n", from, linkType, to)
				return nil
			})
		},
	}
	rm.Flags().StringVarP(&linkType, "type", "t", string(model.LinkRelated), "link type: blocks, related, duplicate")

	ls := &cobra.Command{
		Use:   "ls <id>",
		Short: "List links touching an item",
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

			links, err := a.graph.Links(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if c.json {
				return printJSON(out, toLinksJSON(links))
			}
			if len(links) == 0 {
				fmt.Fprintln(out, "No links")
			}
			for _, l := range links {
				fmt.Fprintf(out, "#%d %s #%d\n", l.FromID, l.Type, l.ToID)
			}
			return nil
		},
	}

	cmd.AddCommand(add, rm, ls)
	return cmd
}

// withPair parses two id arguments and runs fn with an open app.
func withPair(c *cli, cmd *cobra.Command, args []string, fn func(ctx context.Context, a *app, first, second int64) error) error {
	first, err := parseID(args[0])
	if err != nil {
		return err
	}
	second, err := parseID(args[1])
	if err != nil {
		return err
	}
	a, err := c.open()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a, first, second)
}
