// Package query composes parameterized filter queries over the fact graph
// and emits rows, counts, CSV, or JSON.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/storage"
)

// TaskRow is one row of a task query result.
type TaskRow struct {
	TaskGID        string  `json:"task_gid"`
	Name           string  `json:"name"`
	AssigneeGID    *string `json:"assignee_gid"`
	AssigneeName   *string `json:"assignee_name"`
	IsCompleted    bool    `json:"is_completed"`
	CompletedAt    *string `json:"completed_at"`
	DueOn          *string `json:"due_on"`
	CreatedAt      string  `json:"created_at"`
	ModifiedAt     *string `json:"modified_at"`
	ProjectName    *string `json:"project_name"`
	SectionName    *string `json:"section_name"`
	IsOverdue      bool    `json:"is_overdue"`
	DaysToComplete *int    `json:"days_to_complete"`
	NumSubtasks    int     `json:"num_subtasks"`
	NumLikes       int     `json:"num_likes"`
	PermalinkURL   *string `json:"permalink_url"`
}

// Builder accumulates AND-composed filters. The zero value matches all
// tasks with the default limit.
type Builder struct {
	projectGID       string
	portfolioGID     string
	teamGID          string
	assigneeGID      string
	tagName          string
	completed        *bool
	overdue          *bool
	hasAssignee      *bool
	isSubtask        *bool
	createdAfter     string
	createdBefore    string
	completedAfter   string
	completedBefore  string
	dueAfter         string
	dueBefore        string
	customFieldName  string
	customFieldValue string
	limit            int
	orderBy          string
	orderDesc        bool
}

// DefaultLimit bounds result sets when no explicit limit is given.
const DefaultLimit = 100

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) Project(gid string) *Builder   { b.projectGID = gid; return b }
func (b *Builder) Portfolio(gid string) *Builder { b.portfolioGID = gid; return b }
func (b *Builder) Team(gid string) *Builder      { b.teamGID = gid; return b }
func (b *Builder) Assignee(gid string) *Builder  { b.assigneeGID = gid; return b }
func (b *Builder) Tag(name string) *Builder      { b.tagName = name; return b }

func (b *Builder) Completed(v bool) *Builder   { b.completed = &v; return b }
func (b *Builder) Overdue(v bool) *Builder     { b.overdue = &v; return b }
func (b *Builder) HasAssignee(v bool) *Builder { b.hasAssignee = &v; return b }
func (b *Builder) IsSubtask(v bool) *Builder   { b.isSubtask = &v; return b }

func (b *Builder) CreatedAfter(date string) *Builder    { b.createdAfter = date; return b }
func (b *Builder) CreatedBefore(date string) *Builder   { b.createdBefore = date; return b }
func (b *Builder) CompletedAfter(date string) *Builder  { b.completedAfter = date; return b }
func (b *Builder) CompletedBefore(date string) *Builder { b.completedBefore = date; return b }
func (b *Builder) DueAfter(date string) *Builder        { b.dueAfter = date; return b }
func (b *Builder) DueBefore(date string) *Builder       { b.dueBefore = date; return b }

// Period clamps created_date_key to the period's range.
func (b *Builder) Period(p period.Period) *Builder {
	start, end := p.Range()
	b.createdAfter = storage.DateKey(start)
	b.createdBefore = storage.DateKey(end)
	return b
}

// CustomField filters tasks whose named custom field carries the given
// display value.
func (b *Builder) CustomField(name, value string) *Builder {
	b.customFieldName = name
	b.customFieldValue = value
	return b
}

func (b *Builder) Limit(n int) *Builder          { b.limit = n; return b }
func (b *Builder) OrderBy(field string) *Builder { b.orderBy = field; return b }
func (b *Builder) Descending() *Builder          { b.orderDesc = true; return b }

// allowed order columns; anything else falls back to modified_at.
var orderColumns = map[string]string{
	"created_at":       "t.created_at",
	"modified_at":      "t.modified_at",
	"completed_at":     "t.completed_at",
	"due_on":           "t.due_on",
	"name":             "t.name",
	"days_to_complete": "t.days_to_complete",
}

// buildSQL assembles the statement and its parameters.
func (b *Builder) buildSQL() (string, []any) {
	var (
		params []any
		joins  []string
		wheres []string
	)

	sql := `SELECT t.task_gid, COALESCE(t.name, '') AS name, t.assignee_gid, u.name AS assignee_name,
		t.is_completed, t.completed_at, t.due_on, t.created_at, t.modified_at,
		p.name AS project_name, s.name AS section_name,
		t.is_overdue, t.days_to_complete, t.num_subtasks, t.num_likes,
		t.permalink_url
	FROM fact_tasks t
	LEFT JOIN dim_users u ON u.user_gid = t.assignee_gid
	LEFT JOIN bridge_task_projects btp ON btp.task_gid = t.task_gid
	LEFT JOIN dim_projects p ON p.project_gid = btp.project_gid
	LEFT JOIN dim_sections s ON s.section_gid = btp.section_gid`

	if b.projectGID != "" {
		wheres = append(wheres, "btp.project_gid = ?")
		params = append(params, b.projectGID)
	}
	if b.portfolioGID != "" {
		joins = append(joins,
			"JOIN bridge_portfolio_projects bpp ON bpp.project_gid = btp.project_gid AND bpp.portfolio_gid = ?")
		params = append(params, b.portfolioGID)
	}
	if b.teamGID != "" {
		joins = append(joins,
			"JOIN bridge_team_members btm ON btm.user_gid = t.assignee_gid AND btm.team_gid = ?")
		params = append(params, b.teamGID)
	}
	if b.assigneeGID != "" {
		wheres = append(wheres, "t.assignee_gid = ?")
		params = append(params, b.assigneeGID)
	}
	if b.completed != nil {
		wheres = append(wheres, "t.is_completed = ?")
		params = append(params, boolToInt(*b.completed))
	}
	if b.overdue != nil {
		wheres = append(wheres, "t.is_overdue = ?")
		params = append(params, boolToInt(*b.overdue))
	}
	if b.createdAfter != "" {
		wheres = append(wheres, "t.created_date_key >= ?")
		params = append(params, b.createdAfter)
	}
	if b.createdBefore != "" {
		wheres = append(wheres, "t.created_date_key <= ?")
		params = append(params, b.createdBefore)
	}
	if b.completedAfter != "" {
		wheres = append(wheres, "t.completed_date_key >= ?")
		params = append(params, b.completedAfter)
	}
	if b.completedBefore != "" {
		wheres = append(wheres, "t.completed_date_key <= ?")
		params = append(params, b.completedBefore)
	}
	if b.dueAfter != "" {
		wheres = append(wheres, "t.due_on >= ?")
		params = append(params, b.dueAfter)
	}
	if b.dueBefore != "" {
		wheres = append(wheres, "t.due_on <= ?")
		params = append(params, b.dueBefore)
	}
	if b.hasAssignee != nil {
		if *b.hasAssignee {
			wheres = append(wheres, "t.assignee_gid IS NOT NULL")
		} else {
			wheres = append(wheres, "t.assignee_gid IS NULL")
		}
	}
	if b.isSubtask != nil {
		wheres = append(wheres, "t.is_subtask = ?")
		params = append(params, boolToInt(*b.isSubtask))
	}
	if b.tagName != "" {
		joins = append(joins,
			"JOIN bridge_task_tags btt ON btt.task_gid = t.task_gid AND btt.tag_name = ?")
		params = append(params, b.tagName)
	}
	if b.customFieldName != "" {
		joins = append(joins,
			`JOIN fact_task_custom_fields tcf ON tcf.task_gid = t.task_gid
			 JOIN dim_custom_fields cf ON cf.field_gid = tcf.field_gid AND cf.name = ? AND tcf.display_value = ?`)
		params = append(params, b.customFieldName, b.customFieldValue)
	}

	for _, j := range joins {
		sql += " " + j
	}
	if len(wheres) > 0 {
		sql += " WHERE " + strings.Join(wheres, " AND ")
	}

	// Deduplicate tasks appearing in multiple projects.
	sql += " GROUP BY t.task_gid"

	orderCol := orderColumns[b.orderBy]
	if orderCol == "" {
		orderCol = "t.modified_at"
	}
	dir := "ASC"
	if b.orderDesc {
		dir = "DESC"
	}
	sql += fmt.Sprintf(" ORDER BY %s %s", orderCol, dir)

	limit := b.limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	sql += " LIMIT ?"
	params = append(params, limit)

	return sql, params
}

// Tasks executes the query and returns the matching rows.
func (b *Builder) Tasks(ctx context.Context, db *storage.DB) ([]TaskRow, error) {
	stmt, params := b.buildSQL()
	rows, err := db.Reader().QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []TaskRow
	for rows.Next() {
		var r TaskRow
		var isCompleted, isOverdue int
		err := rows.Scan(
			&r.TaskGID, &r.Name, &r.AssigneeGID, &r.AssigneeName,
			&isCompleted, &r.CompletedAt, &r.DueOn, &r.CreatedAt, &r.ModifiedAt,
			&r.ProjectName, &r.SectionName,
			&isOverdue, &r.DaysToComplete, &r.NumSubtasks, &r.NumLikes,
			&r.PermalinkURL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		r.IsCompleted = isCompleted != 0
		r.IsOverdue = isOverdue != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count executes the query and returns the number of matching tasks.
func (b *Builder) Count(ctx context.Context, db *storage.DB) (int, error) {
	inner, params := b.buildSQL()
	var count int
	err := db.Reader().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ("+inner+")", params...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return count, nil
}

// ToJSON executes the query and renders the rows as indented JSON.
func (b *Builder) ToJSON(ctx context.Context, db *storage.DB) (string, error) {
	rows, err := b.Tasks(ctx, db)
	if err != nil {
		return "", err
	}
	if rows == nil {
		rows = []TaskRow{}
	}
	buf, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}
	return string(buf), nil
}

// ToCSV executes the query and renders the rows as CSV.
func (b *Builder) ToCSV(ctx context.Context, db *storage.DB) (string, error) {
	rows, err := b.Tasks(ctx, db)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("task_gid,name,assignee_gid,assignee_name,is_completed,completed_at,due_on,created_at,modified_at,project_name,section_name,is_overdue,days_to_complete,num_subtasks,num_likes,permalink_url\n")
	for _, r := range rows {
		fields := []string{
			csvEscape(r.TaskGID),
			csvEscape(r.Name),
			csvEscape(deref(r.AssigneeGID)),
			csvEscape(deref(r.AssigneeName)),
			fmt.Sprintf("%t", r.IsCompleted),
			csvEscape(deref(r.CompletedAt)),
			csvEscape(deref(r.DueOn)),
			csvEscape(r.CreatedAt),
			csvEscape(deref(r.ModifiedAt)),
			csvEscape(deref(r.ProjectName)),
			csvEscape(deref(r.SectionName)),
			fmt.Sprintf("%t", r.IsOverdue),
			intOrEmpty(r.DaysToComplete),
			fmt.Sprintf("%d", r.NumSubtasks),
			fmt.Sprintf("%d", r.NumLikes),
			csvEscape(deref(r.PermalinkURL)),
		}
		sb.WriteString(strings.Join(fields, ","))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// ProjectRow is one row of a project listing.
type ProjectRow struct {
	ProjectGID string  `json:"project_gid"`
	Name       string  `json:"name"`
	TeamGID    *string `json:"team_gid"`
	IsArchived bool    `json:"is_archived"`
	OpenTasks  int     `json:"open_tasks"`
}

// Projects lists the projects visible in the store, scoped to the
// builder's portfolio or team filter if set.
func (b *Builder) Projects(ctx context.Context, db *storage.DB) ([]ProjectRow, error) {
	stmt := `SELECT p.project_gid, p.name, p.team_gid, p.is_archived,
		(SELECT COUNT(*) FROM bridge_task_projects btp
		 JOIN fact_tasks t ON t.task_gid = btp.task_gid
		 WHERE btp.project_gid = p.project_gid AND t.is_completed = 0) AS open_tasks
	FROM dim_projects p`
	var params []any
	var wheres []string
	if b.portfolioGID != "" {
		wheres = append(wheres,
			"p.project_gid IN (SELECT project_gid FROM bridge_portfolio_projects WHERE portfolio_gid = ?)")
		params = append(params, b.portfolioGID)
	}
	if b.teamGID != "" {
		wheres = append(wheres, "p.team_gid = ?")
		params = append(params, b.teamGID)
	}
	if len(wheres) > 0 {
		stmt += " WHERE " + strings.Join(wheres, " AND ")
	}
	stmt += " ORDER BY p.name"

	rows, err := db.Reader().QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("project query failed: %w", err)
	}
	defer rows.Close()

	var out []ProjectRow
	for rows.Next() {
		var r ProjectRow
		var archived int
		if err := rows.Scan(&r.ProjectGID, &r.Name, &r.TeamGID, &archived, &r.OpenTasks); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		r.IsArchived = archived != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrEmpty(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%d", *n)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
