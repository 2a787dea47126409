package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adlio/asanadw/internal/asanaurl"
	"github.com/adlio/asanadw/internal/llm"
	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/storage"
)

var (
	summarizePeriod string
	summarizeForce  bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Generate LLM summaries of tasks and periods",
}

// openSummarizer wires the provider selected by app_config.
func openSummarizer(ctx context.Context, db *storage.DB) (*llm.Summarizer, error) {
	provider, _, err := storage.GetConfig(ctx, db.Reader(), "llm_provider")
	if err != nil {
		return nil, err
	}
	model, _, err := storage.GetConfig(ctx, db.Reader(), "llm_model")
	if err != nil {
		return nil, err
	}
	p, err := llm.NewProvider(ctx, provider, model)
	if err != nil {
		return nil, err
	}
	return llm.NewSummarizer(db, p), nil
}

var summarizeTaskCmd = &cobra.Command{
	Use:   "task <gid|url>",
	Short: "Summarize one task from its notes, fields, and comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := commandContext()
		defer cancel()

		gid, err := asanaurl.ResolveGID(args[0])
		if err != nil {
			return err
		}
		s, err := openSummarizer(ctx, db)
		if err != nil {
			return err
		}
		summary, err := s.SummarizeTask(ctx, gid, summarizeForce)
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func newSummarizePeriodCmd(kind llm.EntityKind, short string,
	resolve func(context.Context, storage.DBTX, string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind) + " <gid|name|email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx, cancel := commandContext()
			defer cancel()

			p, err := period.Parse(summarizePeriod, time.Now())
			if err != nil {
				return err
			}
			raw, err := asanaurl.ResolveGID(args[0])
			if err != nil {
				return err
			}
			gid, err := resolve(ctx, db.Reader(), raw)
			if err != nil {
				return err
			}
			s, err := openSummarizer(ctx, db)
			if err != nil {
				return err
			}
			summary, err := s.SummarizePeriod(ctx, kind, gid, p, summarizeForce)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	summarizeCmd.PersistentFlags().StringVar(&summarizePeriod, "period", "30d", "period for entity summaries")
	summarizeCmd.PersistentFlags().BoolVar(&summarizeForce, "force", false, "regenerate even when a cached summary exists")

	summarizeCmd.AddCommand(summarizeTaskCmd)
	summarizeCmd.AddCommand(newSummarizePeriodCmd(llm.EntityUser, "Summarize a user's period", storage.ResolveUserIdentifier))
	summarizeCmd.AddCommand(newSummarizePeriodCmd(llm.EntityProject, "Summarize a project's period", storage.ResolveProjectIdentifier))
	summarizeCmd.AddCommand(newSummarizePeriodCmd(llm.EntityPortfolio, "Summarize a portfolio's period", storage.ResolvePortfolioIdentifier))
	summarizeCmd.AddCommand(newSummarizePeriodCmd(llm.EntityTeam, "Summarize a team's period", storage.ResolveTeamIdentifier))
	rootCmd.AddCommand(summarizeCmd)
}
