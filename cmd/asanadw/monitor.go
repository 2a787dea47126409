package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adlio/asanadw/internal/storage"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Manage the entities registered for recurring sync",
}

var monitorAddCmd = &cobra.Command{
	Use:   "add <type> <gid|url|name>",
	Short: "Register a project, portfolio, team, or user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		wh, db, err := openWarehouse()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		key, err := wh.MonitorAdd(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Monitoring %s\n", key)
		return nil
	},
}

var monitorRemoveCmd = &cobra.Command{
	Use:   "remove <entity-key>",
	Short: "Unregister an entity (e.g. project:1234)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wh, db, err := openWarehouse()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		removed, err := wh.MonitorRemove(ctx, args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("%s was not monitored\n", args[0])
			return nil
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var monitorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		entities, err := storage.ListMonitoredEntities(ctx, db.Reader())
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			fmt.Println("No monitored entities.")
			return nil
		}
		for _, e := range entities {
			name := ""
			if e.DisplayName != nil {
				name = "  " + *e.DisplayName
			}
			last := "never"
			if e.LastSyncAt != nil {
				last = *e.LastSyncAt
			}
			fmt.Printf("%-40s%s  (last sync: %s)\n", e.EntityKey, name, last)
		}
		return nil
	},
}

var monitorFavoritesCmd = &cobra.Command{
	Use:   "add-favorites",
	Short: "Register your favorited projects and portfolios",
	RunE: func(cmd *cobra.Command, args []string) error {
		wh, db, err := openWarehouse()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		added, err := wh.MonitorAddFavorites(ctx)
		if err != nil {
			return err
		}
		for _, key := range added {
			fmt.Printf("Monitoring %s\n", key)
		}
		fmt.Printf("%d favorites registered\n", len(added))
		return nil
	},
}

func init() {
	monitorCmd.AddCommand(monitorAddCmd)
	monitorCmd.AddCommand(monitorRemoveCmd)
	monitorCmd.AddCommand(monitorListCmd)
	monitorCmd.AddCommand(monitorFavoritesCmd)
	rootCmd.AddCommand(monitorCmd)
}
