package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/adlio/asanadw/internal/storage"
	syncengine "github.com/adlio/asanadw/internal/sync"
)

var (
	syncDays  int
	syncSince string
	syncFull  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull data from Asana into the local mirror",
}

func syncOptions() (syncengine.Options, error) {
	opts := syncengine.Options{
		Days:     syncDays,
		Full:     syncFull,
		Progress: printProgress,
	}
	since, err := parseSinceFlag(syncSince)
	if err != nil {
		return opts, err
	}
	opts.Since = since
	return opts, nil
}

func printProgress(ev syncengine.ProgressEvent) {
	fmt.Printf("  [%d/%d] %s  %s..%s  (%d items)\n",
		ev.BatchIndex+1, ev.BatchTotal, ev.EntityKey,
		storage.DateKey(ev.Start), storage.DateKey(ev.End), ev.ItemsSoFar)
}

func printReport(report *syncengine.Report) {
	fmt.Printf("%s: %s  synced=%d failed=%d batches=%d/%d in %s\n",
		report.EntityKey, report.Status,
		report.SyncedItems, report.FailedItems,
		report.BatchesCompleted, report.BatchesTotal,
		report.Duration.Round(10*time.Millisecond))
	for _, r := range report.FailedRanges {
		fmt.Printf("  failed range: %s..%s\n", storage.DateKey(r.Start), storage.DateKey(r.End))
	}
}

func newSyncEntityCmd(use, short string,
	run func(*cobra.Command, string, syncengine.Options) (*syncengine.Report, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <gid|url|name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := syncOptions()
			if err != nil {
				return err
			}
			report, err := run(cmd, args[0], opts)
			if err != nil {
				return err
			}
			printReport(report)
			return reportToErr(report)
		},
	}
}

var syncAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Sync every monitored entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := syncOptions()
		if err != nil {
			return err
		}
		wh, db, err := openWarehouse()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := commandContext()
		defer cancel()

		reports, err := wh.SyncAll(ctx, opts)
		if err != nil {
			return err
		}
		var firstBad error
		for _, r := range reports {
			printReport(r)
			if firstBad == nil {
				firstBad = reportToErr(r)
			}
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No monitored entities. Add one with 'asanadw monitor add'.")
		}
		return firstBad
	},
}

func init() {
	syncCmd.PersistentFlags().IntVar(&syncDays, "days", 0, "lookback window in days (default 90)")
	syncCmd.PersistentFlags().StringVar(&syncSince, "since", "", "sync from this date (YYYY-MM-DD or e.g. '2 weeks ago')")
	syncCmd.PersistentFlags().BoolVar(&syncFull, "full", false, "force a full sync, discarding the incremental token")

	syncCmd.AddCommand(newSyncEntityCmd("project", "Sync one project",
		func(cmd *cobra.Command, identifier string, opts syncengine.Options) (*syncengine.Report, error) {
			wh, db, err := openWarehouse()
			if err != nil {
				return nil, err
			}
			defer db.Close()
			ctx, cancel := commandContext()
			defer cancel()
			return wh.SyncProject(ctx, identifier, opts)
		}))
	syncCmd.AddCommand(newSyncEntityCmd("user", "Sync one user's assigned tasks",
		func(cmd *cobra.Command, identifier string, opts syncengine.Options) (*syncengine.Report, error) {
			wh, db, err := openWarehouse()
			if err != nil {
				return nil, err
			}
			defer db.Close()
			ctx, cancel := commandContext()
			defer cancel()
			return wh.SyncUser(ctx, identifier, opts)
		}))
	syncCmd.AddCommand(newSyncEntityCmd("team", "Sync a team's members and projects",
		func(cmd *cobra.Command, identifier string, opts syncengine.Options) (*syncengine.Report, error) {
			wh, db, err := openWarehouse()
			if err != nil {
				return nil, err
			}
			defer db.Close()
			ctx, cancel := commandContext()
			defer cancel()
			return wh.SyncTeam(ctx, identifier, opts)
		}))
	syncCmd.AddCommand(newSyncEntityCmd("portfolio", "Sync a portfolio's projects (recursive)",
		func(cmd *cobra.Command, identifier string, opts syncengine.Options) (*syncengine.Report, error) {
			wh, db, err := openWarehouse()
			if err != nil {
				return nil, err
			}
			defer db.Close()
			ctx, cancel := commandContext()
			defer cancel()
			return wh.SyncPortfolio(ctx, identifier, opts)
		}))
	syncCmd.AddCommand(syncAllCmd)
	rootCmd.AddCommand(syncCmd)
}
