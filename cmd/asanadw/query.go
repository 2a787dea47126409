package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adlio/asanadw/internal/asanaurl"
	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/query"
	"github.com/adlio/asanadw/internal/storage"
)

var (
	queryAssignee   string
	queryProject    string
	queryPortfolio  string
	queryTeam       string
	queryCompleted  bool
	queryIncomplete bool
	queryOverdue    bool
	queryPeriod     string
	querySince      string
	queryUntil      string
	queryTag        string
	queryField      []string
	queryLimit      int
	queryFormat     string
	queryCount      bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the local task mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		b, err := buildQuery(ctx, db)
		if err != nil {
			return err
		}

		if queryCount {
			n, err := b.Count(ctx, db)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		}

		switch queryFormat {
		case "json":
			out, err := b.ToJSON(ctx, db)
			if err != nil {
				return err
			}
			fmt.Println(out)
		case "csv":
			out, err := b.ToCSV(ctx, db)
			if err != nil {
				return err
			}
			fmt.Print(out)
		default:
			rows, err := b.Tasks(ctx, db)
			if err != nil {
				return err
			}
			printTaskTable(rows)
		}
		return nil
	},
}

func buildQuery(ctx context.Context, db *storage.DB) (*query.Builder, error) {
	b := query.New()

	if queryAssignee != "" {
		gid, err := storage.ResolveUserIdentifier(ctx, db.Reader(), queryAssignee)
		if err != nil {
			return nil, err
		}
		b.Assignee(gid)
	}
	if queryProject != "" {
		gid, err := resolveVia(ctx, db, queryProject, storage.ResolveProjectIdentifier)
		if err != nil {
			return nil, err
		}
		b.Project(gid)
	}
	if queryPortfolio != "" {
		gid, err := resolveVia(ctx, db, queryPortfolio, storage.ResolvePortfolioIdentifier)
		if err != nil {
			return nil, err
		}
		b.Portfolio(gid)
	}
	if queryTeam != "" {
		gid, err := resolveVia(ctx, db, queryTeam, storage.ResolveTeamIdentifier)
		if err != nil {
			return nil, err
		}
		b.Team(gid)
	}
	if queryCompleted {
		b.Completed(true)
	}
	if queryIncomplete {
		b.Completed(false)
	}
	if queryOverdue {
		b.Overdue(true)
	}
	if queryPeriod != "" {
		p, err := period.Parse(queryPeriod, time.Now())
		if err != nil {
			return nil, err
		}
		b.Period(p)
	}
	if querySince != "" {
		t, err := parseSinceFlag(querySince)
		if err != nil {
			return nil, err
		}
		b.CreatedAfter(storage.DateKey(t))
	}
	if queryUntil != "" {
		t, err := parseSinceFlag(queryUntil)
		if err != nil {
			return nil, err
		}
		b.CreatedBefore(storage.DateKey(t))
	}
	if queryTag != "" {
		b.Tag(queryTag)
	}
	if len(queryField) == 2 {
		b.CustomField(queryField[0], queryField[1])
	}
	if queryLimit > 0 {
		b.Limit(queryLimit)
	}
	return b, nil
}

func resolveVia(ctx context.Context, db *storage.DB, identifier string,
	resolve func(context.Context, storage.DBTX, string) (string, error)) (string, error) {
	raw, err := asanaurl.ResolveGID(identifier)
	if err != nil {
		return "", err
	}
	return resolve(ctx, db.Reader(), raw)
}

func printTaskTable(rows []query.TaskRow) {
	if len(rows) == 0 {
		fmt.Println("No tasks found.")
		return
	}
	fmt.Printf("%-18s %-50s %-20s %-10s %-10s\n", "GID", "NAME", "ASSIGNEE", "DUE", "STATUS")
	for _, r := range rows {
		status := "open"
		if r.IsCompleted {
			status = "done"
		} else if r.IsOverdue {
			status = "overdue"
		}
		assignee := ""
		if r.AssigneeName != nil {
			assignee = *r.AssigneeName
		}
		due := ""
		if r.DueOn != nil {
			due = *r.DueOn
		}
		fmt.Printf("%-18s %-50s %-20s %-10s %-10s\n",
			r.TaskGID, clip(r.Name, 50), clip(assignee, 20), due, status)
	}
	fmt.Printf("\n%d tasks\n", len(rows))
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryAssignee, "assignee", "", "filter by assignee (email or GID)")
	f.StringVar(&queryProject, "project", "", "filter by project (GID, name, or URL)")
	f.StringVar(&queryPortfolio, "portfolio", "", "filter by portfolio (GID, name, or URL)")
	f.StringVar(&queryTeam, "team", "", "filter by team (GID or name)")
	f.BoolVar(&queryCompleted, "completed", false, "only completed tasks")
	f.BoolVar(&queryIncomplete, "incomplete", false, "only incomplete tasks")
	f.BoolVar(&queryOverdue, "overdue", false, "only overdue tasks")
	f.StringVar(&queryPeriod, "period", "", "restrict to a period (2025-Q1, mtd, 30d, ...)")
	f.StringVar(&querySince, "since", "", "created on or after this date")
	f.StringVar(&queryUntil, "until", "", "created on or before this date")
	f.StringVar(&queryTag, "tag", "", "filter by tag name")
	f.StringSliceVar(&queryField, "field", nil, "filter by custom field: --field name,value")
	f.IntVar(&queryLimit, "limit", 0, "maximum rows (default 100)")
	f.StringVar(&queryFormat, "format", "table", "output format: table, csv, json")
	f.BoolVar(&queryCount, "count", false, "print only the row count")
	rootCmd.AddCommand(queryCmd)
}
