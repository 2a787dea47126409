package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adlio/asanadw/internal/storage"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write durable configuration (workspace_gid, llm_provider, ...)",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		value, ok, err := storage.GetConfig(ctx, db.Reader(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "%s is not set\n", args[0])
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		return db.WriteTx(ctx, func(tx *sql.Tx) error {
			return storage.SetConfig(ctx, tx, args[0], args[1])
		})
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		entries, err := storage.ListConfig(ctx, db.Reader())
		if err != nil {
			return err
		}
		for _, kv := range entries {
			fmt.Printf("%s=%s\n", kv[0], kv[1])
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the mirror's size, coverage, and recent sync jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		r := db.Reader()
		counts := []struct {
			label, table string
		}{
			{"Tasks", "fact_tasks"},
			{"Comments", "fact_comments"},
			{"Projects", "dim_projects"},
			{"Portfolios", "dim_portfolios"},
			{"Teams", "dim_teams"},
			{"Users", "dim_users"},
			{"Status updates", "fact_status_updates"},
		}
		fmt.Printf("Database: %s\n\n", db.Path())
		for _, c := range counts {
			var n int
			if err := r.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(&n); err != nil {
				return err
			}
			fmt.Printf("%-16s %d\n", c.label+":", n)
		}

		rows, err := r.QueryContext(ctx, `
			SELECT entity_key, status, started_at, synced_items, batches_completed, batches_total
			FROM sync_jobs ORDER BY id DESC LIMIT 10`)
		if err != nil {
			return err
		}
		defer rows.Close()
		fmt.Println("\nRecent sync jobs:")
		printed := false
		for rows.Next() {
			var key, status, started string
			var items, done, total int
			if err := rows.Scan(&key, &status, &started, &items, &done, &total); err != nil {
				return err
			}
			fmt.Printf("  %-30s %-10s %s  items=%d batches=%d/%d\n", key, status, started, items, done, total)
			printed = true
		}
		if !printed {
			fmt.Println("  (none)")
		}
		return rows.Err()
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statusCmd)
}
