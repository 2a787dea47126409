package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adlio/asanadw/internal/metrics"
	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/storage"
)

var (
	metricsPeriod  string
	metricsCompare bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Compute throughput, lead-time, health, and collaboration metrics",
}

func newMetricsCmd(use, short string,
	compute func(cmd *cobra.Command, db *storage.DB, gid string, p period.Period, asOf time.Time) (any, error),
	resolve func(cmd *cobra.Command, db *storage.DB, identifier string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <gid|name|email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			asOf := time.Now()
			p, err := period.Parse(metricsPeriod, asOf)
			if err != nil {
				return err
			}
			gid, err := resolve(cmd, db, args[0])
			if err != nil {
				return err
			}
			m, err := compute(cmd, db, gid, p, asOf)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func init() {
	metricsCmd.PersistentFlags().StringVar(&metricsPeriod, "period", "30d", "period (2025-Q1, mtd, 30d, ...)")
	metricsCmd.PersistentFlags().BoolVar(&metricsCompare, "compare", false, "include the prior-period comparison")

	metricsCmd.AddCommand(newMetricsCmd("user", "Metrics for one user",
		func(cmd *cobra.Command, db *storage.DB, gid string, p period.Period, asOf time.Time) (any, error) {
			return metrics.ForUser(cmd.Context(), db, gid, p, asOf, metricsCompare)
		},
		func(cmd *cobra.Command, db *storage.DB, identifier string) (string, error) {
			return storage.ResolveUserIdentifier(cmd.Context(), db.Reader(), identifier)
		}))
	metricsCmd.AddCommand(newMetricsCmd("project", "Metrics for one project",
		func(cmd *cobra.Command, db *storage.DB, gid string, p period.Period, asOf time.Time) (any, error) {
			return metrics.ForProject(cmd.Context(), db, gid, p, asOf, metricsCompare)
		},
		func(cmd *cobra.Command, db *storage.DB, identifier string) (string, error) {
			return resolveVia(cmd.Context(), db, identifier, storage.ResolveProjectIdentifier)
		}))
	metricsCmd.AddCommand(newMetricsCmd("portfolio", "Metrics for one portfolio",
		func(cmd *cobra.Command, db *storage.DB, gid string, p period.Period, asOf time.Time) (any, error) {
			return metrics.ForPortfolio(cmd.Context(), db, gid, p, asOf, metricsCompare)
		},
		func(cmd *cobra.Command, db *storage.DB, identifier string) (string, error) {
			return resolveVia(cmd.Context(), db, identifier, storage.ResolvePortfolioIdentifier)
		}))
	metricsCmd.AddCommand(newMetricsCmd("team", "Metrics for one team",
		func(cmd *cobra.Command, db *storage.DB, gid string, p period.Period, asOf time.Time) (any, error) {
			return metrics.ForTeam(cmd.Context(), db, gid, p, asOf, metricsCompare)
		},
		func(cmd *cobra.Command, db *storage.DB, identifier string) (string, error) {
			return resolveVia(cmd.Context(), db, identifier, storage.ResolveTeamIdentifier)
		}))
	rootCmd.AddCommand(metricsCmd)
}
