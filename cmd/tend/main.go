// Command tend tracks tasks, their blockers and recurring routines.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/baiirun/tend/internal/config"
	"github.com/baiirun/tend/internal/db"
	"github.com/baiirun/tend/internal/graph"
	"github.com/baiirun/tend/internal/logging"
	"github.com/baiirun/tend/internal/recurrence"
	"github.com/baiirun/tend/internal/routine"
)

// cli holds the global flags shared by every command.
type cli struct {
	dbPath     string
	configPath string
	asOf       string
	json       bool
	verbose    bool

	// now is the only wall clock in the program.
	now func() time.Time
}

// app is the wired set of components a command works with.
type app struct {
	cfg    config.Config
	db     *db.DB
	log    *zap.Logger
	loc    *time.Location
	engine *routine.Engine
	graph  *graph.Manager
	// today is --as-of, or the current date in the configured timezone.
	today recurrence.Date
}

func (c *cli) loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return config.Config{}, err
	}

	path := c.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if c.dbPath != "" {
		cfg.DBPath = c.dbPath
	}
	if cfg.DBPath == "" {
		if cfg.DBPath, err = db.DefaultPath(); err != nil {
			return config.Config{}, err
		}
	}
	if c.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// open loads configuration, opens the database and builds the services.
func (c *cli) open() (*app, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := database.Init(); err != nil {
		_ = database.Close()
		return nil, err
	}

	a := &app{
		cfg: cfg,
		db:  database,
		log: log,
		loc: loc,
		engine: routine.New(database, routine.Options{
			Actor:              cfg.Actor,
			Location:           loc,
			ReportNoOccurrence: cfg.Recurrence.ExhaustedScan == config.ExhaustedScanNone,
			Now:                c.now,
			Logger:             log,
		}),
		graph: graph.NewSQL(database, graph.Options{
			Actor:        cfg.Actor,
			RejectCycles: cfg.Graph.RejectCycles,
			Now:          c.now,
			Logger:       log,
		}),
	}

	a.today = a.engine.Today(c.now())
	if c.asOf != "" {
		if a.today, err = recurrence.ParseDate(c.asOf); err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid --as-of: %w", err)
		}
	}

	log.Debug("opened", zap.String("db", cfg.DBPath), zap.Stringer("today", a.today))
	return a, nil
}

// Close releases the database and flushes the logger.
func (a *app) Close() {
	_ = a.log.Sync()
	_ = a.db.Close()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newRootCmd(now func() time.Time) *cobra.Command {
	c := &cli{now: now}

	root := &cobra.Command{
		Use:   "tend",
		Short: "Track tasks, blockers and recurring routines",
		Long: `A CLI for tasks with blocking dependencies and for routines that recur on a schedule.
Missed routine occurrences can be caught up in bulk as completed or skipped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.dbPath, "db", "", "database path (default ~/.tend/tend.db)")
	pf.StringVar(&c.configPath, "config", "", "config file (default ~/.tend/config.yaml)")
	pf.StringVar(&c.asOf, "as-of", "", "treat this date (YYYY-MM-DD) as today")
	pf.BoolVar(&c.json, "json", false, "output JSON")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newInitCmd(c),
		newAddCmd(c),
		newListCmd(c),
		newReadyCmd(c),
		newShowCmd(c),
		newStatusCmd(c),
		newDoneCmd(c),
		newDeleteCmd(c),
		newBlockCmd(c),
		newUnblockCmd(c),
		newLinkCmd(c),
		newRoutineCmd(c),
		newWatchCmd(c),
		newTUICmd(c),
	)
	return root
}

func main() {
	if err := newRootCmd(time.Now).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, db.ErrNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
