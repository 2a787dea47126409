// Package metrics computes throughput, lead-time, health, and
// collaboration aggregates over a period for users, projects, portfolios,
// and teams. When the requested period is current, prior-period
// comparisons automatically use the equivalent to-date window.
package metrics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/storage"
)

const maxPortfolioDepth = 6

// scope narrows the fact_tasks rows a metric covers. Exactly one of
// userGID / projectGIDs is set; empty means the whole store.
type scope struct {
	userGID     string
	projectGIDs []string
}

func (s scope) empty() bool {
	return s.userGID == "" && len(s.projectGIDs) == 0
}

// clause returns the join and where fragments plus their bind args.
func (s scope) clause() (join, where string, args []any) {
	switch {
	case len(s.projectGIDs) > 0:
		join = "JOIN bridge_task_projects btp ON btp.task_gid = t.task_gid"
		where = " AND btp.project_gid IN (" + placeholders(len(s.projectGIDs)) + ")"
		for _, g := range s.projectGIDs {
			args = append(args, g)
		}
	case s.userGID != "":
		where = " AND t.assignee_gid = ?"
		args = []any{s.userGID}
	}
	return
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ForUser computes user metrics for the period. withPrior adds the
// prior-period comparison.
func ForUser(ctx context.Context, db *storage.DB, userGID string, p period.Period, asOf time.Time, withPrior bool) (*UserMetrics, error) {
	m, err := userMetrics(ctx, db, userGID, p)
	if err != nil {
		return nil, err
	}
	if withPrior {
		prior, err := userMetrics(ctx, db, userGID, priorPeriod(p, asOf))
		if err != nil {
			return nil, err
		}
		m.Prior = prior
	}
	return m, nil
}

func userMetrics(ctx context.Context, db *storage.DB, userGID string, p period.Period) (*UserMetrics, error) {
	start, end := periodKeys(p)
	sc := scope{userGID: userGID}
	m := &UserMetrics{UserGID: userGID, PeriodKey: p.Key()}
	m.UserName = lookupName(ctx, db, "dim_users", "user_gid", "name", userGID)

	var err error
	if m.Throughput, err = throughput(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	if m.LeadTime, err = leadTime(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	if m.Collaboration, err = collaboration(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	if err = userCollaboration(ctx, db, userGID, start, end, &m.Collaboration); err != nil {
		return nil, err
	}
	return m, nil
}

// ForProject computes project metrics for the period.
func ForProject(ctx context.Context, db *storage.DB, projectGID string, p period.Period, asOf time.Time, withPrior bool) (*ProjectMetrics, error) {
	m, err := projectMetrics(ctx, db, projectGID, p)
	if err != nil {
		return nil, err
	}
	if withPrior {
		prior, err := projectMetrics(ctx, db, projectGID, priorPeriod(p, asOf))
		if err != nil {
			return nil, err
		}
		m.Prior = prior
	}
	return m, nil
}

func projectMetrics(ctx context.Context, db *storage.DB, projectGID string, p period.Period) (*ProjectMetrics, error) {
	start, end := periodKeys(p)
	sc := scope{projectGIDs: []string{projectGID}}
	m := &ProjectMetrics{ProjectGID: projectGID, PeriodKey: p.Key()}
	m.ProjectName = lookupName(ctx, db, "dim_projects", "project_gid", "name", projectGID)

	var err error
	if m.Throughput, err = throughput(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	if m.Health, err = health(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	if err = statusHealth(ctx, db, projectGID, start, end, &m.Health); err != nil {
		return nil, err
	}
	if m.LeadTime, err = leadTime(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	if m.Collaboration, err = collaboration(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	return m, nil
}

// ForPortfolio computes metrics over the union of projects contained in
// the portfolio and its sub-portfolios (recursive, at most six levels,
// cycle-guarded).
func ForPortfolio(ctx context.Context, db *storage.DB, portfolioGID string, p period.Period, asOf time.Time, withPrior bool) (*PortfolioMetrics, error) {
	m, err := portfolioMetrics(ctx, db, portfolioGID, p)
	if err != nil {
		return nil, err
	}
	if withPrior {
		prior, err := portfolioMetrics(ctx, db, portfolioGID, priorPeriod(p, asOf))
		if err != nil {
			return nil, err
		}
		m.Prior = prior
	}
	return m, nil
}

func portfolioMetrics(ctx context.Context, db *storage.DB, portfolioGID string, p period.Period) (*PortfolioMetrics, error) {
	start, end := periodKeys(p)
	projectGIDs, err := portfolioProjectGIDs(ctx, db, portfolioGID)
	if err != nil {
		return nil, err
	}

	m := &PortfolioMetrics{
		PortfolioGID: portfolioGID,
		PeriodKey:    p.Key(),
		ProjectCount: len(projectGIDs),
	}
	m.PortfolioName = lookupName(ctx, db, "dim_portfolios", "portfolio_gid", "name", portfolioGID)
	if len(projectGIDs) == 0 {
		return m, nil
	}

	sc := scope{projectGIDs: projectGIDs}
	if m.Throughput, err = throughput(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	if m.Health, err = health(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	if err = statusHealth(ctx, db, portfolioGID, start, end, &m.Health); err != nil {
		return nil, err
	}
	if m.LeadTime, err = leadTime(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	if m.Collaboration, err = collaboration(ctx, db, sc, start, end); err != nil {
		return nil, err
	}
	return m, nil
}

// ForTeam computes team metrics with a per-member breakdown. Throughput,
// lead time, and comment/like totals are summed over tasks assigned to
// team members; tasks in the team's projects that no member is assigned
// to are not counted. The team's projects contribute only to the blocker
// count.
func ForTeam(ctx context.Context, db *storage.DB, teamGID string, p period.Period, asOf time.Time, withPrior bool) (*TeamMetrics, error) {
	m, err := teamMetrics(ctx, db, teamGID, p)
	if err != nil {
		return nil, err
	}
	if withPrior {
		prior, err := teamMetrics(ctx, db, teamGID, priorPeriod(p, asOf))
		if err != nil {
			return nil, err
		}
		m.Prior = prior
	}
	return m, nil
}

func teamMetrics(ctx context.Context, db *storage.DB, teamGID string, p period.Period) (*TeamMetrics, error) {
	start, end := periodKeys(p)
	m := &TeamMetrics{TeamGID: teamGID, PeriodKey: p.Key()}
	m.TeamName = lookupName(ctx, db, "dim_teams", "team_gid", "name", teamGID)

	memberGIDs, err := teamMemberGIDs(ctx, db, teamGID)
	if err != nil {
		return nil, err
	}
	m.MemberCount = len(memberGIDs)

	projectGIDs, err := teamProjectGIDs(ctx, db, teamGID)
	if err != nil {
		return nil, err
	}

	// Throughput, lead time, and collaboration are summed per member over
	// member-assigned tasks. The project scope (sc) is used only for the
	// blocker count below.
	sc := scope{projectGIDs: projectGIDs}
	var lead []int
	for _, uid := range memberGIDs {
		usc := scope{userGID: uid}
		t, err := throughput(ctx, db, usc, start, end)
		if err != nil {
			return nil, err
		}
		m.Throughput.TasksCreated += t.TasksCreated
		m.Throughput.TasksCompleted += t.TasksCompleted
		m.Throughput.SubtasksCompleted += t.SubtasksCompleted
		m.Throughput.OpenAtPeriodEnd += t.OpenAtPeriodEnd

		days, err := leadTimeRaw(ctx, db, usc, start, end)
		if err != nil {
			return nil, err
		}
		lead = append(lead, days...)

		c, err := collaboration(ctx, db, usc, start, end)
		if err != nil {
			return nil, err
		}
		m.Collaboration.TotalComments += c.TotalComments
		m.Collaboration.TotalLikes += c.TotalLikes

		member := MemberMetrics{
			UserGID:        uid,
			UserName:       lookupName(ctx, db, "dim_users", "user_gid", "name", uid),
			TasksCompleted: t.TasksCompleted,
			TasksCreated:   t.TasksCreated,
			OpenTasks:      t.OpenAtPeriodEnd,
		}
		m.Members = append(m.Members, member)
	}
	m.Throughput.NetNew = m.Throughput.TasksCreated - m.Throughput.TasksCompleted
	if denom := m.Throughput.TasksCompleted + m.Throughput.OpenAtPeriodEnd; denom > 0 {
		m.Throughput.CompletionRate = float64(m.Throughput.TasksCompleted) / float64(denom)
	}
	m.LeadTime = percentiles(lead)

	if len(memberGIDs) > 0 {
		if err := teamHealth(ctx, db, memberGIDs, &m.Health); err != nil {
			return nil, err
		}
		if err := teamCommenters(ctx, db, memberGIDs, start, end, &m.Collaboration); err != nil {
			return nil, err
		}
	}
	if len(projectGIDs) > 0 {
		h, err := health(ctx, db, sc, start, end)
		if err != nil {
			return nil, err
		}
		// The reported blocker count is the larger of the member-scoped
		// and project-scoped counts.
		if h.BlockerCount > m.Health.BlockerCount {
			m.Health.BlockerCount = h.BlockerCount
		}
	}
	return m, nil
}

// priorPeriod picks the comparison period: the equivalent to-date window
// when the period is current, the full previous period otherwise.
func priorPeriod(p period.Period, asOf time.Time) period.Period {
	if p.IsCurrent(asOf) {
		return p.PriorToDate(asOf)
	}
	return p.Previous()
}

func periodKeys(p period.Period) (string, string) {
	start, end := p.Range()
	return storage.DateKey(start), storage.DateKey(end)
}

// ── SQL aggregates ─────────────────────────────────────────────────

func throughput(ctx context.Context, db *storage.DB, sc scope, start, end string) (Throughput, error) {
	var t Throughput
	join, where, scopeArgs := sc.clause()

	q := fmt.Sprintf(`SELECT COUNT(DISTINCT t.task_gid) FROM fact_tasks t %s
		WHERE t.created_date_key >= ? AND t.created_date_key <= ?%s`, join, where)
	if err := db.Reader().QueryRowContext(ctx, q,
		append([]any{start, end}, scopeArgs...)...).Scan(&t.TasksCreated); err != nil {
		return t, fmt.Errorf("throughput created query failed: %w", err)
	}

	q = fmt.Sprintf(`SELECT COUNT(DISTINCT t.task_gid),
			COUNT(DISTINCT CASE WHEN t.is_subtask = 1 THEN t.task_gid END)
		FROM fact_tasks t %s
		WHERE t.is_completed = 1 AND t.completed_date_key >= ? AND t.completed_date_key <= ?%s`, join, where)
	if err := db.Reader().QueryRowContext(ctx, q,
		append([]any{start, end}, scopeArgs...)...).Scan(&t.TasksCompleted, &t.SubtasksCompleted); err != nil {
		return t, fmt.Errorf("throughput completed query failed: %w", err)
	}

	// Open at period end: created by then, not completed by then.
	q = fmt.Sprintf(`SELECT COUNT(DISTINCT t.task_gid) FROM fact_tasks t %s
		WHERE t.created_date_key <= ?
		  AND (t.is_completed = 0 OR t.completed_date_key > ?)%s`, join, where)
	if err := db.Reader().QueryRowContext(ctx, q,
		append([]any{end, end}, scopeArgs...)...).Scan(&t.OpenAtPeriodEnd); err != nil {
		return t, fmt.Errorf("throughput open query failed: %w", err)
	}

	t.NetNew = t.TasksCreated - t.TasksCompleted
	if denom := t.TasksCompleted + t.OpenAtPeriodEnd; denom > 0 {
		t.CompletionRate = float64(t.TasksCompleted) / float64(denom)
	}
	return t, nil
}

func health(ctx context.Context, db *storage.DB, sc scope, start, end string) (Health, error) {
	var h Health
	join, where, scopeArgs := sc.clause()

	q := fmt.Sprintf(`SELECT
			COUNT(DISTINCT CASE WHEN t.is_overdue = 1 THEN t.task_gid END),
			COUNT(DISTINCT CASE WHEN t.assignee_gid IS NULL THEN t.task_gid END),
			COUNT(DISTINCT CASE WHEN t.modified_at < datetime('now', '-14 days') THEN t.task_gid END),
			COUNT(DISTINCT t.task_gid)
		FROM fact_tasks t %s
		WHERE t.is_completed = 0%s`, join, where)
	if err := db.Reader().QueryRowContext(ctx, q, scopeArgs...).Scan(
		&h.OverdueCount, &h.UnassignedCount, &h.StaleCount, &h.TotalOpen); err != nil {
		return h, fmt.Errorf("health query failed: %w", err)
	}

	// Blockers: open tasks with at least one incomplete dependency.
	q = fmt.Sprintf(`SELECT COUNT(DISTINCT t.task_gid)
		FROM fact_tasks t %s
		JOIN bridge_task_dependencies btd ON btd.task_gid = t.task_gid
		LEFT JOIN fact_tasks dep ON dep.task_gid = btd.depends_on_gid
		WHERE t.is_completed = 0
		  AND (dep.task_gid IS NULL OR dep.is_completed = 0)%s`, join, where)
	if err := db.Reader().QueryRowContext(ctx, q, scopeArgs...).Scan(&h.BlockerCount); err != nil {
		return h, fmt.Errorf("blocker query failed: %w", err)
	}

	if h.TotalOpen > 0 {
		h.OverduePct = float64(h.OverdueCount) / float64(h.TotalOpen) * 100
		h.UnassignedPct = float64(h.UnassignedCount) / float64(h.TotalOpen) * 100
	}
	return h, nil
}

// statusHealth fills the status-update counts for a project or portfolio:
// updates posted inside the period and the most recent status at or
// before the period end.
func statusHealth(ctx context.Context, db *storage.DB, parentGID, start, end string, h *Health) error {
	err := db.Reader().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fact_status_updates
		WHERE parent_gid = ? AND created_date_key >= ? AND created_date_key <= ?`,
		parentGID, start, end).Scan(&h.StatusUpdateCount)
	if err != nil {
		return fmt.Errorf("status update count failed: %w", err)
	}

	var statusType, title sql.NullString
	err = db.Reader().QueryRowContext(ctx, `
		SELECT status_type, title FROM fact_status_updates
		WHERE parent_gid = ? AND created_date_key <= ?
		ORDER BY created_at DESC LIMIT 1`,
		parentGID, end).Scan(&statusType, &title)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("latest status query failed: %w", err)
	}
	h.LatestStatusType = statusType.String
	h.LatestStatusTitle = title.String
	return nil
}

func teamHealth(ctx context.Context, db *storage.DB, memberGIDs []string, h *Health) error {
	q := fmt.Sprintf(`SELECT
			COUNT(CASE WHEN is_overdue = 1 THEN 1 END),
			COUNT(CASE WHEN modified_at < datetime('now', '-14 days') THEN 1 END),
			COUNT(*)
		FROM fact_tasks
		WHERE is_completed = 0 AND assignee_gid IN (%s)`, placeholders(len(memberGIDs)))
	args := make([]any, len(memberGIDs))
	for i, g := range memberGIDs {
		args[i] = g
	}
	if err := db.Reader().QueryRowContext(ctx, q, args...).Scan(
		&h.OverdueCount, &h.StaleCount, &h.TotalOpen); err != nil {
		return fmt.Errorf("team health query failed: %w", err)
	}
	if h.TotalOpen > 0 {
		h.OverduePct = float64(h.OverdueCount) / float64(h.TotalOpen) * 100
	}

	q = fmt.Sprintf(`SELECT COUNT(DISTINCT t.task_gid)
		FROM fact_tasks t
		JOIN bridge_task_dependencies btd ON btd.task_gid = t.task_gid
		LEFT JOIN fact_tasks dep ON dep.task_gid = btd.depends_on_gid
		WHERE t.is_completed = 0 AND t.assignee_gid IN (%s)
		  AND (dep.task_gid IS NULL OR dep.is_completed = 0)`, placeholders(len(memberGIDs)))
	if err := db.Reader().QueryRowContext(ctx, q, args...).Scan(&h.BlockerCount); err != nil {
		return fmt.Errorf("team blocker query failed: %w", err)
	}
	return nil
}

func leadTimeRaw(ctx context.Context, db *storage.DB, sc scope, start, end string) ([]int, error) {
	join, where, scopeArgs := sc.clause()
	q := fmt.Sprintf(`SELECT DISTINCT t.task_gid, t.days_to_complete FROM fact_tasks t %s
		WHERE t.is_completed = 1 AND t.days_to_complete IS NOT NULL
		  AND t.completed_date_key >= ? AND t.completed_date_key <= ?%s`, join, where)
	rows, err := db.Reader().QueryContext(ctx, q, append([]any{start, end}, scopeArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("lead time query failed: %w", err)
	}
	defer rows.Close()

	var days []int
	for rows.Next() {
		var gid string
		var d int
		if err := rows.Scan(&gid, &d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func leadTime(ctx context.Context, db *storage.DB, sc scope, start, end string) (LeadTime, error) {
	days, err := leadTimeRaw(ctx, db, sc, start, end)
	if err != nil {
		return LeadTime{}, err
	}
	return percentiles(days), nil
}

func collaboration(ctx context.Context, db *storage.DB, sc scope, start, end string) (Collaboration, error) {
	var c Collaboration

	var join, where string
	var scopeArgs []any
	switch {
	case len(sc.projectGIDs) > 0:
		join = "JOIN bridge_task_projects btp ON btp.task_gid = c.task_gid"
		where = " AND btp.project_gid IN (" + placeholders(len(sc.projectGIDs)) + ")"
		for _, g := range sc.projectGIDs {
			scopeArgs = append(scopeArgs, g)
		}
	case sc.userGID != "":
		join = "JOIN fact_tasks t ON t.task_gid = c.task_gid"
		where = " AND t.assignee_gid = ?"
		scopeArgs = []any{sc.userGID}
	}

	q := fmt.Sprintf(`SELECT COUNT(*), COUNT(DISTINCT c.author_gid)
		FROM fact_comments c %s
		WHERE c.created_date_key >= ? AND c.created_date_key <= ?%s`, join, where)
	if err := db.Reader().QueryRowContext(ctx, q,
		append([]any{start, end}, scopeArgs...)...).Scan(&c.TotalComments, &c.UniqueCommenters); err != nil {
		return c, fmt.Errorf("collaboration comments query failed: %w", err)
	}

	tjoin, twhere, targs := sc.clause()
	q = fmt.Sprintf(`SELECT COALESCE(SUM(num_likes), 0) FROM (
			SELECT DISTINCT t.task_gid, t.num_likes FROM fact_tasks t %s
			WHERE t.created_date_key >= ? AND t.created_date_key <= ?%s)`, tjoin, twhere)
	if err := db.Reader().QueryRowContext(ctx, q,
		append([]any{start, end}, targs...)...).Scan(&c.TotalLikes); err != nil {
		return c, fmt.Errorf("collaboration likes query failed: %w", err)
	}

	q = fmt.Sprintf(`SELECT COUNT(DISTINCT t.task_gid) FROM fact_tasks t %s
		JOIN bridge_task_followers btf ON btf.task_gid = t.task_gid
		WHERE t.created_date_key >= ? AND t.created_date_key <= ?%s`, tjoin, twhere)
	if err := db.Reader().QueryRowContext(ctx, q,
		append([]any{start, end}, targs...)...).Scan(&c.TasksWithFollowers); err != nil {
		return c, fmt.Errorf("collaboration followers query failed: %w", err)
	}

	return c, nil
}

// userCollaboration fills the user-specific fields: comments the user
// authored in the period and the distinct collaborators (followers plus
// comment authors, excluding the user) on tasks touched in the period.
func userCollaboration(ctx context.Context, db *storage.DB, userGID, start, end string, c *Collaboration) error {
	err := db.Reader().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fact_comments
		WHERE author_gid = ? AND created_date_key >= ? AND created_date_key <= ?`,
		userGID, start, end).Scan(&c.CommentsAuthored)
	if err != nil {
		return fmt.Errorf("comments authored query failed: %w", err)
	}

	err = db.Reader().QueryRowContext(ctx, `
		WITH touched AS (
			SELECT task_gid FROM fact_tasks
			WHERE assignee_gid = ?1
			  AND ((created_date_key >= ?2 AND created_date_key <= ?3)
			    OR (completed_date_key >= ?2 AND completed_date_key <= ?3)
			    OR (substr(modified_at, 1, 10) >= ?2 AND substr(modified_at, 1, 10) <= ?3))
		)
		SELECT COUNT(DISTINCT who) FROM (
			SELECT btf.user_gid AS who FROM bridge_task_followers btf
			WHERE btf.task_gid IN (SELECT task_gid FROM touched)
			UNION
			SELECT fc.author_gid AS who FROM fact_comments fc
			WHERE fc.task_gid IN (SELECT task_gid FROM touched) AND fc.author_gid IS NOT NULL
		) WHERE who != ?1`,
		userGID, start, end).Scan(&c.UniqueCollaborators)
	if err != nil {
		return fmt.Errorf("collaborators query failed: %w", err)
	}
	return nil
}

// portfolioProjectGIDs walks bridge_portfolio_projects plus
// bridge_portfolio_portfolios recursively (visited-set guarded, at most
// six levels).
func portfolioProjectGIDs(ctx context.Context, db *storage.DB, portfolioGID string) ([]string, error) {
	visited := map[string]bool{}
	var projects []string
	seen := map[string]bool{}

	var walk func(gid string, depth int) error
	walk = func(gid string, depth int) error {
		if depth >= maxPortfolioDepth || visited[gid] {
			return nil
		}
		visited[gid] = true

		rows, err := db.Reader().QueryContext(ctx,
			"SELECT project_gid FROM bridge_portfolio_projects WHERE portfolio_gid = ?", gid)
		if err != nil {
			return fmt.Errorf("portfolio projects query failed: %w", err)
		}
		for rows.Next() {
			var pgid string
			if err := rows.Scan(&pgid); err != nil {
				rows.Close()
				return err
			}
			if !seen[pgid] {
				seen[pgid] = true
				projects = append(projects, pgid)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		rows, err = db.Reader().QueryContext(ctx,
			"SELECT child_portfolio_gid FROM bridge_portfolio_portfolios WHERE parent_portfolio_gid = ?", gid)
		if err != nil {
			return fmt.Errorf("sub-portfolio query failed: %w", err)
		}
		var children []string
		for rows.Next() {
			var cgid string
			if err := rows.Scan(&cgid); err != nil {
				rows.Close()
				return err
			}
			children = append(children, cgid)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, child := range children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(portfolioGID, 0); err != nil {
		return nil, err
	}
	sort.Strings(projects)
	return projects, nil
}

func teamMemberGIDs(ctx context.Context, db *storage.DB, teamGID string) ([]string, error) {
	rows, err := db.Reader().QueryContext(ctx,
		"SELECT user_gid FROM bridge_team_members WHERE team_gid = ?", teamGID)
	if err != nil {
		return nil, fmt.Errorf("team members query failed: %w", err)
	}
	defer rows.Close()
	var gids []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		gids = append(gids, g)
	}
	return gids, rows.Err()
}

func teamProjectGIDs(ctx context.Context, db *storage.DB, teamGID string) ([]string, error) {
	rows, err := db.Reader().QueryContext(ctx,
		"SELECT project_gid FROM dim_projects WHERE team_gid = ?", teamGID)
	if err != nil {
		return nil, fmt.Errorf("team projects query failed: %w", err)
	}
	defer rows.Close()
	var gids []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		gids = append(gids, g)
	}
	return gids, rows.Err()
}

func teamCommenters(ctx context.Context, db *storage.DB, memberGIDs []string, start, end string, c *Collaboration) error {
	q := fmt.Sprintf(`SELECT COUNT(DISTINCT fc.author_gid)
		FROM fact_comments fc
		JOIN fact_tasks t ON t.task_gid = fc.task_gid
		WHERE t.assignee_gid IN (%s)
		  AND fc.created_date_key >= ? AND fc.created_date_key <= ?`, placeholders(len(memberGIDs)))
	args := make([]any, 0, len(memberGIDs)+2)
	for _, g := range memberGIDs {
		args = append(args, g)
	}
	args = append(args, start, end)
	if err := db.Reader().QueryRowContext(ctx, q, args...).Scan(&c.UniqueCommenters); err != nil {
		return fmt.Errorf("team commenters query failed: %w", err)
	}
	return nil
}

func lookupName(ctx context.Context, db *storage.DB, table, gidCol, nameCol, gid string) string {
	var name sql.NullString
	err := db.Reader().QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", nameCol, table, gidCol), gid).Scan(&name)
	if err != nil {
		return ""
	}
	return name.String
}

// percentiles computes the lead-time summary from sorted daily values.
func percentiles(days []int) LeadTime {
	if len(days) == 0 {
		return LeadTime{}
	}
	sort.Ints(days)

	sum := 0
	for _, d := range days {
		sum += d
	}
	avg := float64(sum) / float64(len(days))

	var median float64
	if len(days)%2 == 0 {
		mid := len(days) / 2
		median = (float64(days[mid-1]) + float64(days[mid])) / 2
	} else {
		median = float64(days[len(days)/2])
	}

	p90Idx := int(float64(len(days))*0.9+0.9999) - 1
	if p90Idx >= len(days) {
		p90Idx = len(days) - 1
	}
	if p90Idx < 0 {
		p90Idx = 0
	}
	p90 := float64(days[p90Idx])

	min := days[0]
	max := days[len(days)-1]
	return LeadTime{Avg: &avg, Median: &median, P90: &p90, Min: &min, Max: &max}
}
