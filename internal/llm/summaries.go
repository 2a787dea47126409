package llm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/adlio/asanadw/internal/metrics"
	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/storage"
)

const (
	taskPromptVersion   = "task-v1"
	periodPromptVersion = "period-v1"
)

// TaskSummary is the structured analysis of one task.
type TaskSummary struct {
	Headline         string   `json:"headline"`
	WhatHappened     string   `json:"what_happened"`
	WhyItMatters     string   `json:"why_it_matters"`
	ComplexitySignal string   `json:"complexity_signal"`
	NotabilityScore  int      `json:"notability_score"`
	ChangeTypes      []string `json:"change_types"`
}

// PeriodSummary is the structured narrative for an entity over a period.
type PeriodSummary struct {
	Headline   string   `json:"headline"`
	Narrative  string   `json:"narrative"`
	Highlights []string `json:"highlights"`
}

// Summarizer gathers evidence from the store, invokes the provider, and
// persists summaries keyed by prompt version.
type Summarizer struct {
	db       *storage.DB
	provider Provider
}

// NewSummarizer builds a summarizer over the given store and provider.
func NewSummarizer(db *storage.DB, provider Provider) *Summarizer {
	return &Summarizer{db: db, provider: provider}
}

// SummarizeTask analyzes one task, serving from the cache unless force is
// set or the cached row was generated by an older prompt version.
func (s *Summarizer) SummarizeTask(ctx context.Context, taskGID string, force bool) (*TaskSummary, error) {
	if !force {
		if cached, err := s.cachedTaskSummary(ctx, taskGID); err != nil {
			return nil, err
		} else if cached != nil {
			return cached, nil
		}
	}

	evidence, err := s.gatherTaskEvidence(ctx, taskGID)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Analyze this Asana task and provide a structured summary as JSON.

Task data:
%s

Respond with ONLY a JSON object (no markdown, no code fences) in this exact format:
{
  "headline": "One-sentence summary of the task",
  "what_happened": "2-3 sentences describing what the task involves and its current state",
  "why_it_matters": "1-2 sentences on the significance or impact",
  "complexity_signal": "low|medium|high",
  "notability_score": <1-10 integer>,
  "change_types": ["list", "of", "relevant", "labels"]
}

For change_types, use labels like: "feature", "bug", "design", "documentation", "infrastructure", "planning", "review", "discussion", "milestone", "blocked", "recurring".`, evidence)

	reply, err := s.provider.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	var summary TaskSummary
	if err := json.Unmarshal([]byte(stripCodeFences(reply)), &summary); err != nil {
		return nil, fmt.Errorf("llm: failed to parse reply: %w\nreply: %s", err, reply)
	}

	err = s.db.WriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO fact_task_summaries
			(task_gid, headline, what_happened, why_it_matters, complexity_signal,
			 notability_score, change_types, prompt_version, generated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
			taskGID, summary.Headline, summary.WhatHappened, summary.WhyItMatters,
			summary.ComplexitySignal, summary.NotabilityScore,
			storage.JSONStrings(summary.ChangeTypes), taskPromptVersion)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store task summary: %w", err)
	}
	return &summary, nil
}

func (s *Summarizer) cachedTaskSummary(ctx context.Context, taskGID string) (*TaskSummary, error) {
	var summary TaskSummary
	var changeTypes string
	err := s.db.Reader().QueryRowContext(ctx, `
		SELECT headline, what_happened, why_it_matters, complexity_signal, notability_score, change_types
		FROM fact_task_summaries WHERE task_gid = ? AND prompt_version = ?`,
		taskGID, taskPromptVersion).Scan(
		&summary.Headline, &summary.WhatHappened, &summary.WhyItMatters,
		&summary.ComplexitySignal, &summary.NotabilityScore, &changeTypes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached summary: %w", err)
	}
	_ = json.Unmarshal([]byte(changeTypes), &summary.ChangeTypes)
	return &summary, nil
}

// gatherTaskEvidence assembles the task, its custom fields, comments, and
// project memberships into a prompt-ready block.
func (s *Summarizer) gatherTaskEvidence(ctx context.Context, taskGID string) (string, error) {
	var parts []string
	r := s.db.Reader()

	var name, notes, completedAt, dueOn, assigneeGID, createdAt sql.NullString
	var completed int
	err := r.QueryRowContext(ctx, `
		SELECT name, notes, is_completed, completed_at, due_on, assignee_gid, created_at
		FROM fact_tasks WHERE task_gid = ?`, taskGID).Scan(
		&name, &notes, &completed, &completedAt, &dueOn, &assigneeGID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: task %s", storage.ErrNotFound, taskGID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read task %s: %w", taskGID, err)
	}

	parts = append(parts, "Name: "+name.String)
	status := "open"
	if completed != 0 {
		status = "completed"
	}
	parts = append(parts, "Status: "+status)
	if completedAt.Valid {
		parts = append(parts, "Completed: "+completedAt.String)
	}
	if dueOn.Valid {
		parts = append(parts, "Due: "+dueOn.String)
	}
	if createdAt.Valid {
		parts = append(parts, "Created: "+createdAt.String)
	}
	if assigneeGID.Valid {
		var assigneeName sql.NullString
		_ = r.QueryRowContext(ctx,
			"SELECT name FROM dim_users WHERE user_gid = ?", assigneeGID.String).Scan(&assigneeName)
		if assigneeName.Valid {
			parts = append(parts, "Assignee: "+assigneeName.String)
		} else {
			parts = append(parts, "Assignee: "+assigneeGID.String)
		}
	}
	if notes.Valid && notes.String != "" {
		parts = append(parts, "Notes: "+truncate(notes.String, 2000))
	}

	rows, err := r.QueryContext(ctx, `
		SELECT cf.name, tcf.display_value FROM fact_task_custom_fields tcf
		JOIN dim_custom_fields cf ON cf.field_gid = tcf.field_gid
		WHERE tcf.task_gid = ?`, taskGID)
	if err != nil {
		return "", fmt.Errorf("failed to read custom fields: %w", err)
	}
	var fieldLines []string
	for rows.Next() {
		var fname, val string
		if err := rows.Scan(&fname, &val); err != nil {
			rows.Close()
			return "", err
		}
		fieldLines = append(fieldLines, fmt.Sprintf("  %s: %s", fname, val))
	}
	rows.Close()
	if len(fieldLines) > 0 {
		parts = append(parts, "Custom Fields:")
		parts = append(parts, fieldLines...)
	}

	rows, err = r.QueryContext(ctx, `
		SELECT u.name, c.text, c.created_at FROM fact_comments c
		LEFT JOIN dim_users u ON u.user_gid = c.author_gid
		WHERE c.task_gid = ? AND c.story_type = 'comment_added'
		ORDER BY c.created_at`, taskGID)
	if err != nil {
		return "", fmt.Errorf("failed to read comments: %w", err)
	}
	var commentLines []string
	for rows.Next() {
		var author, text sql.NullString
		var createdAt string
		if err := rows.Scan(&author, &text, &createdAt); err != nil {
			rows.Close()
			return "", err
		}
		a := author.String
		if a == "" {
			a = "unknown"
		}
		commentLines = append(commentLines,
			fmt.Sprintf("  [%s] %s: %s", createdAt, a, truncate(text.String, 500)))
	}
	rows.Close()
	if len(commentLines) > 0 {
		parts = append(parts, fmt.Sprintf("\nComments (%d):", len(commentLines)))
		parts = append(parts, commentLines...)
	}

	rows, err = r.QueryContext(ctx, `
		SELECT p.name, s.name FROM bridge_task_projects btp
		JOIN dim_projects p ON p.project_gid = btp.project_gid
		LEFT JOIN dim_sections s ON s.section_gid = btp.section_gid
		WHERE btp.task_gid = ?`, taskGID)
	if err != nil {
		return "", fmt.Errorf("failed to read memberships: %w", err)
	}
	var memberLines []string
	for rows.Next() {
		var proj string
		var section sql.NullString
		if err := rows.Scan(&proj, &section); err != nil {
			rows.Close()
			return "", err
		}
		if section.Valid {
			memberLines = append(memberLines, fmt.Sprintf("  %s / %s", proj, section.String))
		} else {
			memberLines = append(memberLines, "  "+proj)
		}
	}
	rows.Close()
	if len(memberLines) > 0 {
		parts = append(parts, "Projects:")
		parts = append(parts, memberLines...)
	}

	return strings.Join(parts, "\n"), nil
}

// EntityKind selects the period-summary table.
type EntityKind string

const (
	EntityUser      EntityKind = "user"
	EntityProject   EntityKind = "project"
	EntityPortfolio EntityKind = "portfolio"
	EntityTeam      EntityKind = "team"
)

var summaryTables = map[EntityKind][2]string{
	EntityUser:      {"fact_user_period_summaries", "user_gid"},
	EntityProject:   {"fact_project_period_summaries", "project_gid"},
	EntityPortfolio: {"fact_portfolio_period_summaries", "portfolio_gid"},
	EntityTeam:      {"fact_team_period_summaries", "team_gid"},
}

// SummarizePeriod builds the period narrative for an entity, serving from
// the cache unless force is set.
func (s *Summarizer) SummarizePeriod(ctx context.Context, kind EntityKind, gid string, p period.Period, force bool) (*PeriodSummary, error) {
	table, ok := summaryTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown summary entity kind: %s", kind)
	}
	periodKey := p.Key()

	if !force {
		if cached, err := s.cachedPeriodSummary(ctx, table, gid, periodKey); err != nil {
			return nil, err
		} else if cached != nil {
			return cached, nil
		}
	}

	evidence, err := s.gatherPeriodEvidence(ctx, kind, gid, p)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Analyze this %s's Asana activity for the period %s and write a concise narrative summary as JSON.

Evidence:
%s

Respond with ONLY a JSON object (no markdown, no code fences) in this exact format:
{
  "headline": "One-sentence summary of the period",
  "narrative": "2-4 sentences describing the period's work and outcomes",
  "highlights": ["up to five short bullet highlights"]
}`, kind, periodKey, evidence)

	reply, err := s.provider.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	var summary PeriodSummary
	if err := json.Unmarshal([]byte(stripCodeFences(reply)), &summary); err != nil {
		return nil, fmt.Errorf("llm: failed to parse reply: %w\nreply: %s", err, reply)
	}

	err = s.db.WriteTx(ctx, func(tx *sql.Tx) error {
		stmt := fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (%s, period_key, headline, narrative, highlights, prompt_version, generated_at)
			VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`, table[0], table[1])
		_, err := tx.ExecContext(ctx, stmt,
			gid, periodKey, summary.Headline, summary.Narrative,
			storage.JSONStrings(summary.Highlights), periodPromptVersion)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store period summary: %w", err)
	}
	return &summary, nil
}

func (s *Summarizer) cachedPeriodSummary(ctx context.Context, table [2]string, gid, periodKey string) (*PeriodSummary, error) {
	stmt := fmt.Sprintf(`
		SELECT headline, narrative, highlights FROM %s
		WHERE %s = ? AND period_key = ? AND prompt_version = ?`, table[0], table[1])
	var summary PeriodSummary
	var highlights string
	err := s.db.Reader().QueryRowContext(ctx, stmt, gid, periodKey, periodPromptVersion).Scan(
		&summary.Headline, &summary.Narrative, &highlights)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached period summary: %w", err)
	}
	_ = json.Unmarshal([]byte(highlights), &summary.Highlights)
	return &summary, nil
}

// gatherPeriodEvidence serializes the entity's metrics plus its most
// active tasks and latest status updates for the period.
func (s *Summarizer) gatherPeriodEvidence(ctx context.Context, kind EntityKind, gid string, p period.Period) (string, error) {
	var parts []string
	start, end := p.Range()
	startKey, endKey := storage.DateKey(start), storage.DateKey(end)

	asOf := end
	var metricsJSON any
	var err error
	switch kind {
	case EntityUser:
		metricsJSON, err = metrics.ForUser(ctx, s.db, gid, p, asOf, false)
	case EntityProject:
		metricsJSON, err = metrics.ForProject(ctx, s.db, gid, p, asOf, false)
	case EntityPortfolio:
		metricsJSON, err = metrics.ForPortfolio(ctx, s.db, gid, p, asOf, false)
	case EntityTeam:
		metricsJSON, err = metrics.ForTeam(ctx, s.db, gid, p, asOf, false)
	}
	if err != nil {
		return "", err
	}
	if buf, err := json.MarshalIndent(metricsJSON, "", "  "); err == nil {
		parts = append(parts, "Metrics:\n"+string(buf))
	}

	// Most active tasks: completed in period first, then touched.
	var scopeJoin, scopeWhere string
	var scopeArgs []any
	switch kind {
	case EntityUser:
		scopeWhere = " AND t.assignee_gid = ?"
		scopeArgs = []any{gid}
	case EntityProject:
		scopeJoin = "JOIN bridge_task_projects btp ON btp.task_gid = t.task_gid"
		scopeWhere = " AND btp.project_gid = ?"
		scopeArgs = []any{gid}
	case EntityPortfolio:
		scopeJoin = "JOIN bridge_task_projects btp ON btp.task_gid = t.task_gid"
		scopeWhere = ` AND btp.project_gid IN (
			SELECT project_gid FROM bridge_portfolio_projects WHERE portfolio_gid = ?)`
		scopeArgs = []any{gid}
	case EntityTeam:
		scopeWhere = ` AND t.assignee_gid IN (
			SELECT user_gid FROM bridge_team_members WHERE team_gid = ?)`
		scopeArgs = []any{gid}
	}

	stmt := fmt.Sprintf(`SELECT DISTINCT t.name, t.is_completed, t.completed_date_key
		FROM fact_tasks t %s
		WHERE ((t.completed_date_key >= ? AND t.completed_date_key <= ?)
		    OR (t.created_date_key >= ? AND t.created_date_key <= ?))%s
		ORDER BY t.is_completed DESC, t.completed_date_key DESC
		LIMIT 30`, scopeJoin, scopeWhere)
	args := append([]any{startKey, endKey, startKey, endKey}, scopeArgs...)
	rows, err := s.db.Reader().QueryContext(ctx, stmt, args...)
	if err != nil {
		return "", fmt.Errorf("failed to read period tasks: %w", err)
	}
	var taskLines []string
	for rows.Next() {
		var name sql.NullString
		var completed int
		var completedKey sql.NullString
		if err := rows.Scan(&name, &completed, &completedKey); err != nil {
			rows.Close()
			return "", err
		}
		marker := "open"
		if completed != 0 {
			marker = "completed " + completedKey.String
		}
		taskLines = append(taskLines, fmt.Sprintf("  - %s (%s)", name.String, marker))
	}
	rows.Close()
	if len(taskLines) > 0 {
		parts = append(parts, "Tasks touched:")
		parts = append(parts, taskLines...)
	}

	if kind == EntityProject || kind == EntityPortfolio {
		rows, err := s.db.Reader().QueryContext(ctx, `
			SELECT status_type, title, text, created_date_key FROM fact_status_updates
			WHERE parent_gid = ? AND created_date_key >= ? AND created_date_key <= ?
			ORDER BY created_at DESC LIMIT 5`, gid, startKey, endKey)
		if err != nil {
			return "", fmt.Errorf("failed to read status updates: %w", err)
		}
		var statusLines []string
		for rows.Next() {
			var statusType, title, dateKey string
			var text sql.NullString
			if err := rows.Scan(&statusType, &title, &text, &dateKey); err != nil {
				rows.Close()
				return "", err
			}
			statusLines = append(statusLines,
				fmt.Sprintf("  [%s] (%s) %s: %s", dateKey, statusType, title, truncate(text.String, 300)))
		}
		rows.Close()
		if len(statusLines) > 0 {
			parts = append(parts, "Status updates:")
			parts = append(parts, statusLines...)
		}
	}

	return strings.Join(parts, "\n"), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary.
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
