package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adlio/asanadw/internal/search"
	"github.com/adlio/asanadw/internal/storage"
)

var (
	searchTypes    []string
	searchAssignee string
	searchProject  string
	searchLimit    int
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Full-text search across tasks, comments, projects, and portfolios",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		opts := search.Options{Limit: searchLimit}
		for _, t := range searchTypes {
			opts.Types = append(opts.Types, search.HitType(t))
		}
		if searchAssignee != "" {
			gid, err := storage.ResolveUserIdentifier(ctx, db.Reader(), searchAssignee)
			if err != nil {
				return err
			}
			opts.AssigneeGID = gid
		}
		if searchProject != "" {
			gid, err := resolveVia(ctx, db, searchProject, storage.ResolveProjectIdentifier)
			if err != nil {
				return err
			}
			opts.ProjectGID = gid
		}

		results, err := search.Search(ctx, db, strings.Join(args, " "), opts)
		if err != nil {
			return err
		}
		if results.Total == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, h := range results.Hits {
			fmt.Printf("[%-12s] %s\n", h.Type, h.Title)
			if h.Snippet != "" {
				fmt.Printf("               %s\n", h.Snippet)
			}
			if h.URL != "" {
				fmt.Printf("               %s\n", h.URL)
			}
		}
		fmt.Printf("\n%d results\n", results.Total)
		return nil
	},
}

func init() {
	f := searchCmd.Flags()
	f.StringSliceVar(&searchTypes, "type", nil, "restrict to types: task, comment, project, portfolio, custom_field")
	f.StringVar(&searchAssignee, "assignee", "", "filter task hits by assignee")
	f.StringVar(&searchProject, "project", "", "filter task hits by project")
	f.IntVar(&searchLimit, "limit", 0, "maximum results (default 50)")
	rootCmd.AddCommand(searchCmd)
}
