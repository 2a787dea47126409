// Package search translates free-form queries into FTS5 MATCH queries
// across the five virtual tables, merges hits by rank, and decorates them
// with base-row metadata.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/adlio/asanadw/internal/asanaurl"
	"github.com/adlio/asanadw/internal/storage"
)

// HitType classifies what matched.
type HitType string

const (
	HitTask        HitType = "task"
	HitComment     HitType = "comment"
	HitProject     HitType = "project"
	HitPortfolio   HitType = "portfolio"
	HitCustomField HitType = "custom_field"
)

// Hit is a single search result.
type Hit struct {
	Type HitType `json:"type"`
	// GID of the matched entity.
	GID string `json:"gid"`
	// TaskGID is set for comment and custom-field hits.
	TaskGID string `json:"task_gid,omitempty"`
	Title   string `json:"title"`
	// Snippet is the matching portion with matched tokens wrapped in **;
	// custom-field hits carry the plain display value instead.
	Snippet string `json:"snippet"`
	// Rank is the FTS5 relevance score; lower sorts first.
	Rank float64 `json:"rank"`
	URL  string  `json:"url,omitempty"`
}

// Options narrows a search.
type Options struct {
	// Types restricts the entity types searched; empty means all.
	Types []HitType
	// AssigneeGID filters task/comment/custom-field hits to one assignee.
	AssigneeGID string
	// ProjectGID filters task/comment/custom-field hits to one project.
	ProjectGID string
	// Limit caps the merged result count (default 50).
	Limit int
}

// DefaultLimit caps results when Options.Limit is unset.
const DefaultLimit = 50

// Results is the merged outcome of one search.
type Results struct {
	Query string `json:"query"`
	Hits  []Hit  `json:"hits"`
	Total int    `json:"total"`
}

// Search runs the query across the selected FTS tables. An empty query
// returns empty results, not an error.
func Search(ctx context.Context, db *storage.DB, rawQuery string, opts Options) (*Results, error) {
	res := &Results{Query: rawQuery}
	if strings.TrimSpace(rawQuery) == "" {
		return res, nil
	}

	match := normalizeQuery(rawQuery)
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	wants := func(t HitType) bool {
		if len(opts.Types) == 0 {
			return true
		}
		for _, w := range opts.Types {
			if w == t {
				return true
			}
		}
		return false
	}

	var hits []Hit
	if wants(HitTask) {
		h, err := searchTasks(ctx, db, match, opts, limit)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h...)
	}
	if wants(HitComment) {
		h, err := searchComments(ctx, db, match, opts, limit)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h...)
	}
	if wants(HitProject) {
		h, err := searchProjects(ctx, db, match, limit)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h...)
	}
	if wants(HitPortfolio) {
		h, err := searchPortfolios(ctx, db, match, limit)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h...)
	}
	if wants(HitCustomField) {
		h, err := searchCustomFields(ctx, db, match, opts, limit)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h...)
	}

	// FTS5 rank is more negative for better matches; ascending merge puts
	// the most relevant first.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Rank < hits[j].Rank })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	res.Hits = hits
	res.Total = len(hits)
	return res, nil
}

// normalizeQuery accepts unquoted multi-word input. When any token
// carries a character FTS5 would treat specially, the whole input is
// normalized to a quoted phrase; plain barewords pass through so FTS5's
// implicit AND still applies.
func normalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if strings.HasPrefix(q, `"`) && strings.HasSuffix(q, `"`) {
		return q
	}
	for _, tok := range strings.Fields(q) {
		if !isBareword(tok) {
			return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
		}
	}
	return q
}

func isBareword(tok string) bool {
	for _, r := range tok {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r > 127:
		default:
			return false
		}
	}
	return tok != ""
}

// snippetFn builds the FTS5 snippet() call for a column with ** markers.
func snippetFn(table string, col int) string {
	return fmt.Sprintf("snippet(%s, %d, '**', '**', '...', 32)", table, col)
}

func searchTasks(ctx context.Context, db *storage.DB, match string, opts Options, limit int) ([]Hit, error) {
	sqlStr := `SELECT t.task_gid, COALESCE(t.name, ''), ` + snippetFn("tasks_fts", 1) + `, tasks_fts.rank, t.permalink_url
		FROM tasks_fts
		JOIN fact_tasks t ON t.id = tasks_fts.rowid
		WHERE tasks_fts MATCH ?`
	params := []any{match}
	if opts.AssigneeGID != "" {
		sqlStr += " AND t.assignee_gid = ?"
		params = append(params, opts.AssigneeGID)
	}
	if opts.ProjectGID != "" {
		sqlStr += " AND t.task_gid IN (SELECT task_gid FROM bridge_task_projects WHERE project_gid = ?)"
		params = append(params, opts.ProjectGID)
	}
	sqlStr += " ORDER BY rank LIMIT ?"
	params = append(params, limit)

	rows, err := db.Reader().QueryContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, fmt.Errorf("task search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var snippet, url *string
		if err := rows.Scan(&h.GID, &h.Title, &snippet, &h.Rank, &url); err != nil {
			return nil, fmt.Errorf("failed to scan task hit: %w", err)
		}
		h.Type = HitTask
		h.Snippet = strDeref(snippet)
		h.URL = urlOr(url, asanaurl.Generate(asanaurl.KindTask, h.GID))
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func searchComments(ctx context.Context, db *storage.DB, match string, opts Options, limit int) ([]Hit, error) {
	sqlStr := `SELECT c.comment_gid, c.task_gid, t.name, ` + snippetFn("comments_fts", 0) + `, comments_fts.rank, t.permalink_url
		FROM comments_fts
		JOIN fact_comments c ON c.id = comments_fts.rowid
		LEFT JOIN fact_tasks t ON t.task_gid = c.task_gid
		WHERE comments_fts MATCH ?`
	params := []any{match}
	if opts.AssigneeGID != "" {
		sqlStr += " AND t.assignee_gid = ?"
		params = append(params, opts.AssigneeGID)
	}
	if opts.ProjectGID != "" {
		sqlStr += " AND c.task_gid IN (SELECT task_gid FROM bridge_task_projects WHERE project_gid = ?)"
		params = append(params, opts.ProjectGID)
	}
	sqlStr += " ORDER BY rank LIMIT ?"
	params = append(params, limit)

	rows, err := db.Reader().QueryContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, fmt.Errorf("comment search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var taskName, snippet, url *string
		if err := rows.Scan(&h.GID, &h.TaskGID, &taskName, &snippet, &h.Rank, &url); err != nil {
			return nil, fmt.Errorf("failed to scan comment hit: %w", err)
		}
		h.Type = HitComment
		name := strDeref(taskName)
		if name == "" {
			name = "(unknown task)"
		}
		h.Title = "Comment on: " + name
		h.Snippet = strDeref(snippet)
		h.URL = urlOr(url, asanaurl.Generate(asanaurl.KindTask, h.TaskGID))
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func searchProjects(ctx context.Context, db *storage.DB, match string, limit int) ([]Hit, error) {
	sqlStr := `SELECT p.project_gid, p.name, ` + snippetFn("projects_fts", 1) + `, projects_fts.rank, p.permalink_url
		FROM projects_fts
		JOIN dim_projects p ON p.id = projects_fts.rowid
		WHERE projects_fts MATCH ?
		ORDER BY rank LIMIT ?`
	rows, err := db.Reader().QueryContext(ctx, sqlStr, match, limit)
	if err != nil {
		return nil, fmt.Errorf("project search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var snippet, url *string
		if err := rows.Scan(&h.GID, &h.Title, &snippet, &h.Rank, &url); err != nil {
			return nil, fmt.Errorf("failed to scan project hit: %w", err)
		}
		h.Type = HitProject
		h.Snippet = strDeref(snippet)
		h.URL = urlOr(url, asanaurl.Generate(asanaurl.KindProject, h.GID))
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func searchPortfolios(ctx context.Context, db *storage.DB, match string, limit int) ([]Hit, error) {
	sqlStr := `SELECT p.portfolio_gid, p.name, ` + snippetFn("portfolios_fts", 0) + `, portfolios_fts.rank, p.permalink_url
		FROM portfolios_fts
		JOIN dim_portfolios p ON p.rowid = portfolios_fts.rowid
		WHERE portfolios_fts MATCH ?
		ORDER BY rank LIMIT ?`
	rows, err := db.Reader().QueryContext(ctx, sqlStr, match, limit)
	if err != nil {
		return nil, fmt.Errorf("portfolio search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var snippet, url *string
		if err := rows.Scan(&h.GID, &h.Title, &snippet, &h.Rank, &url); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio hit: %w", err)
		}
		h.Type = HitPortfolio
		h.Snippet = strDeref(snippet)
		h.URL = urlOr(url, asanaurl.Generate(asanaurl.KindPortfolio, h.GID))
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func searchCustomFields(ctx context.Context, db *storage.DB, match string, opts Options, limit int) ([]Hit, error) {
	sqlStr := `SELECT cff.task_gid, t.name, cff.field_name, cff.display_value, cff.rank, t.permalink_url
		FROM custom_fields_fts cff
		LEFT JOIN fact_tasks t ON t.task_gid = cff.task_gid
		WHERE custom_fields_fts MATCH ?`
	params := []any{match}
	if opts.AssigneeGID != "" {
		sqlStr += " AND t.assignee_gid = ?"
		params = append(params, opts.AssigneeGID)
	}
	if opts.ProjectGID != "" {
		sqlStr += " AND cff.task_gid IN (SELECT task_gid FROM bridge_task_projects WHERE project_gid = ?)"
		params = append(params, opts.ProjectGID)
	}
	sqlStr += " ORDER BY rank LIMIT ?"
	params = append(params, limit)

	rows, err := db.Reader().QueryContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, fmt.Errorf("custom field search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var taskName, url *string
		var fieldName, displayValue string
		if err := rows.Scan(&h.TaskGID, &taskName, &fieldName, &displayValue, &h.Rank, &url); err != nil {
			return nil, fmt.Errorf("failed to scan custom field hit: %w", err)
		}
		h.Type = HitCustomField
		h.GID = h.TaskGID
		name := strDeref(taskName)
		if name == "" {
			name = "(unknown task)"
		}
		h.Title = fmt.Sprintf("%s: %s = %s", name, fieldName, displayValue)
		h.Snippet = displayValue
		h.URL = urlOr(url, asanaurl.Generate(asanaurl.KindTask, h.TaskGID))
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func urlOr(stored *string, fallback string) string {
	if stored != nil && *stored != "" {
		return *stored
	}
	return fallback
}
