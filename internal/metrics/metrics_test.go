package metrics

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/storage"
)

func seededDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	err = db.WriteTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`INSERT INTO dim_projects (project_gid, name, workspace_gid) VALUES ('p1', 'Test Project', 'w1')`,
			`INSERT INTO dim_users (user_gid, name) VALUES ('u1', 'Alice'), ('u2', 'Bob')`,
			`INSERT INTO dim_teams (team_gid, name, workspace_gid) VALUES ('team1', 'Core', 'w1')`,
			`INSERT INTO bridge_team_members (team_gid, user_gid) VALUES ('team1', 'u1'), ('team1', 'u2')`,

			// Completed in January, 9 days of lead time.
			`INSERT INTO fact_tasks (task_gid, name, assignee_gid, is_completed, completed_at, completed_date_key,
				created_at, created_date_key, modified_at, is_subtask, days_to_complete, is_overdue)
			 VALUES ('t1', 'Task 1', 'u1', 1, '2025-01-10', '2025-01-10', '2025-01-01', '2025-01-01', '2025-01-10', 0, 9, 0)`,
			`INSERT INTO bridge_task_projects (task_gid, project_gid) VALUES ('t1', 'p1')`,

			// Open, unassigned.
			`INSERT INTO fact_tasks (task_gid, name, is_completed, created_at, created_date_key, modified_at, is_subtask, is_overdue)
			 VALUES ('t2', 'Task 2', 0, '2025-01-05', '2025-01-05', '2025-01-05', 0, 0)`,
			`INSERT INTO bridge_task_projects (task_gid, project_gid) VALUES ('t2', 'p1')`,

			// Open, overdue, blocked on t2.
			`INSERT INTO fact_tasks (task_gid, name, assignee_gid, is_completed, due_on, created_at, created_date_key, modified_at, is_subtask, is_overdue)
			 VALUES ('t3', 'Task 3', 'u1', 0, '2024-12-01', '2025-01-01', '2025-01-01', '2025-01-01', 0, 1)`,
			`INSERT INTO bridge_task_projects (task_gid, project_gid) VALUES ('t3', 'p1')`,
			`INSERT INTO bridge_task_dependencies (task_gid, depends_on_gid) VALUES ('t3', 't2')`,

			// Completed subtask, 3 days.
			`INSERT INTO fact_tasks (task_gid, name, assignee_gid, is_completed, completed_at, completed_date_key,
				created_at, created_date_key, modified_at, parent_gid, is_subtask, days_to_complete, is_overdue)
			 VALUES ('t4', 'Subtask', 'u1', 1, '2025-01-20', '2025-01-20', '2025-01-17', '2025-01-17', '2025-01-20', 't1', 1, 3, 0)`,
			`INSERT INTO bridge_task_projects (task_gid, project_gid) VALUES ('t4', 'p1')`,

			// Comments and followers in January.
			`INSERT INTO fact_comments (comment_gid, task_gid, author_gid, text, story_type, created_at, created_date_key)
			 VALUES ('c1', 't1', 'u2', 'nice work', 'comment_added', '2025-01-08', '2025-01-08'),
			        ('c2', 't1', 'u1', 'thanks', 'comment_added', '2025-01-09', '2025-01-09')`,
			`INSERT INTO bridge_task_followers (task_gid, user_gid) VALUES ('t1', 'u2')`,

			// Status updates for the project.
			`INSERT INTO fact_status_updates (status_gid, parent_gid, parent_type, title, status_type, created_at, created_date_key)
			 VALUES ('s1', 'p1', 'project', 'On track', 'on_track', '2025-01-15', '2025-01-15'),
			        ('s2', 'p1', 'project', 'At risk', 'at_risk', '2025-01-25', '2025-01-25')`,

			// Portfolio graph: pf1 -> p1, pf1 -> pf2 (empty).
			`INSERT INTO dim_portfolios (portfolio_gid, name, workspace_gid) VALUES ('pf1', 'Big Picture', 'w1'), ('pf2', 'Nested', 'w1')`,
			`INSERT INTO bridge_portfolio_projects (portfolio_gid, project_gid) VALUES ('pf1', 'p1')`,
			`INSERT INTO bridge_portfolio_portfolios (parent_portfolio_gid, child_portfolio_gid) VALUES ('pf1', 'pf2')`,
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return db
}

func january() period.Period {
	return period.Period{Type: period.Month, Year: 2025, Num: 1}
}

func TestForProject_ThroughputAndHealth(t *testing.T) {
	db := seededDB(t)
	asOf := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	m, err := ForProject(context.Background(), db, "p1", january(), asOf, false)
	require.NoError(t, err)

	assert.Equal(t, "Test Project", m.ProjectName)
	assert.Equal(t, 4, m.Throughput.TasksCreated)
	assert.Equal(t, 2, m.Throughput.TasksCompleted)
	assert.Equal(t, 1, m.Throughput.SubtasksCompleted)
	assert.Equal(t, 2, m.Throughput.OpenAtPeriodEnd)
	assert.InDelta(t, 0.5, m.Throughput.CompletionRate, 0.001)

	assert.Equal(t, 2, m.Health.TotalOpen)
	assert.Equal(t, 1, m.Health.OverdueCount)
	assert.Equal(t, 1, m.Health.UnassignedCount)
	assert.Equal(t, 1, m.Health.BlockerCount)
	assert.Equal(t, 2, m.Health.StatusUpdateCount)
	assert.Equal(t, "at_risk", m.Health.LatestStatusType)

	require.NotNil(t, m.LeadTime.Avg)
	assert.InDelta(t, 6.0, *m.LeadTime.Avg, 0.001) // (9+3)/2
	require.NotNil(t, m.LeadTime.Median)
	assert.InDelta(t, 6.0, *m.LeadTime.Median, 0.001)

	assert.Equal(t, 2, m.Collaboration.TotalComments)
	assert.Equal(t, 2, m.Collaboration.UniqueCommenters)
	assert.Equal(t, 1, m.Collaboration.TasksWithFollowers)
}

func TestForUser_Metrics(t *testing.T) {
	db := seededDB(t)
	asOf := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	m, err := ForUser(context.Background(), db, "u1", january(), asOf, false)
	require.NoError(t, err)

	assert.Equal(t, "Alice", m.UserName)
	assert.Equal(t, 3, m.Throughput.TasksCreated) // t1, t3, t4
	assert.Equal(t, 2, m.Throughput.TasksCompleted)
	assert.Equal(t, 1, m.Collaboration.CommentsAuthored)
	// Collaborators on Alice's touched tasks: Bob (follower + commenter).
	assert.Equal(t, 1, m.Collaboration.UniqueCollaborators)
}

func TestForPortfolio_RecursiveProjects(t *testing.T) {
	db := seededDB(t)
	asOf := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	m, err := ForPortfolio(context.Background(), db, "pf1", january(), asOf, false)
	require.NoError(t, err)

	assert.Equal(t, 1, m.ProjectCount)
	assert.Equal(t, 4, m.Throughput.TasksCreated)
	assert.Equal(t, 2, m.Throughput.TasksCompleted)
}

func TestForPortfolio_CycleGuard(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	// Create a cycle pf1 <-> pf2.
	err := db.WriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bridge_portfolio_portfolios (parent_portfolio_gid, child_portfolio_gid)
			VALUES ('pf2', 'pf1')`)
		return err
	})
	require.NoError(t, err)

	asOf := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	m, err := ForPortfolio(ctx, db, "pf1", january(), asOf, false)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ProjectCount, "cycle must not duplicate projects")
}

func TestForTeam_MemberBreakdown(t *testing.T) {
	db := seededDB(t)
	asOf := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	m, err := ForTeam(context.Background(), db, "team1", january(), asOf, false)
	require.NoError(t, err)

	assert.Equal(t, 2, m.MemberCount)
	require.Len(t, m.Members, 2)

	var alice *MemberMetrics
	for i := range m.Members {
		if m.Members[i].UserGID == "u1" {
			alice = &m.Members[i]
		}
	}
	require.NotNil(t, alice)
	assert.Equal(t, 2, alice.TasksCompleted)
	assert.Equal(t, "Alice", alice.UserName)
}

func TestPriorComparison_CurrentPeriodUsesToDate(t *testing.T) {
	db := seededDB(t)

	// asOf inside January: the prior side must be December to the same
	// day offset, not the whole of December.
	asOf := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	m, err := ForUser(context.Background(), db, "u1", january(), asOf, true)
	require.NoError(t, err)
	require.NotNil(t, m.Prior)
	assert.Equal(t, "10d", m.Prior.PeriodKey)
}

func TestPriorComparison_PastPeriodUsesFullPrevious(t *testing.T) {
	db := seededDB(t)

	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m, err := ForUser(context.Background(), db, "u1", january(), asOf, true)
	require.NoError(t, err)
	require.NotNil(t, m.Prior)
	assert.Equal(t, "2024-12", m.Prior.PeriodKey)
}

func TestPercentiles(t *testing.T) {
	lt := percentiles(nil)
	assert.Nil(t, lt.Avg)

	lt = percentiles([]int{5})
	assert.Equal(t, 5.0, *lt.Avg)
	assert.Equal(t, 5.0, *lt.Median)
	assert.Equal(t, 5.0, *lt.P90)
	assert.Equal(t, 5, *lt.Min)
	assert.Equal(t, 5, *lt.Max)

	lt = percentiles([]int{3, 7})
	assert.Equal(t, 5.0, *lt.Avg)
	assert.Equal(t, 5.0, *lt.Median)

	hundred := make([]int, 100)
	for i := range hundred {
		hundred[i] = i + 1
	}
	lt = percentiles(hundred)
	assert.Equal(t, 50.5, *lt.Avg)
	assert.Equal(t, 50.5, *lt.Median)
	assert.Equal(t, 90.0, *lt.P90)
	assert.Equal(t, 1, *lt.Min)
	assert.Equal(t, 100, *lt.Max)
}
