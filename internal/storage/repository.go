package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adlio/asanadw/internal/asana"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repository functions
// can run against the reader pool or inside a write transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	// ErrNotFound reports that an entity is absent from the store.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous reports that a name matched more than one entity.
	ErrAmbiguous = errors.New("ambiguous identifier")
	// ErrSyncRunning reports that another sync already holds the advisory
	// lock (a running sync_jobs row) for the entity.
	ErrSyncRunning = errors.New("sync already running")
)

// ── Users ──────────────────────────────────────────────────────────

// UpsertUser stores a full user record.
func UpsertUser(ctx context.Context, q DBTX, user *asana.User) error {
	var photoURL *string
	if user.Photo != nil {
		photoURL = user.Photo.Image128
		if photoURL == nil {
			photoURL = user.Photo.Image60
		}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO dim_users (user_gid, email, name, photo_url, cached_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(user_gid) DO UPDATE SET
			email = excluded.email, name = excluded.name,
			photo_url = excluded.photo_url, cached_at = excluded.cached_at`,
		user.GID, user.Email, user.Name, photoURL)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.GID, err)
	}
	return nil
}

// UpsertUserMinimal inserts a user known only by GID and name (e.g. a task
// assignee reference). An existing email is preserved; an existing
// non-empty name is only replaced by another non-empty name.
func UpsertUserMinimal(ctx context.Context, q DBTX, gid, name string, email *string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO dim_users (user_gid, name, email, cached_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(user_gid) DO UPDATE SET
			email = COALESCE(excluded.email, dim_users.email),
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE dim_users.name END`,
		gid, name, email)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", gid, err)
	}
	return nil
}

// ResolveUserIdentifier resolves a GID or email to a user GID.
func ResolveUserIdentifier(ctx context.Context, q DBTX, identifier string) (string, error) {
	if isAllDigits(identifier) {
		return identifier, nil
	}
	var gid string
	err := q.QueryRowContext(ctx,
		"SELECT user_gid FROM dim_users WHERE email = ?", identifier).Scan(&gid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: user %q", ErrNotFound, identifier)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve user %q: %w", identifier, err)
	}
	return gid, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// resolveByName looks an entity up by exact name in the given table,
// failing on zero or multiple matches.
func resolveByName(ctx context.Context, q DBTX, table, gidCol, name string) (string, error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE name = ?", gidCol, table), name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", name, err)
	}
	defer rows.Close()

	var gids []string
	for rows.Next() {
		var gid string
		if err := rows.Scan(&gid); err != nil {
			return "", err
		}
		gids = append(gids, gid)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(gids) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	case 1:
		return gids[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %d entities", ErrAmbiguous, name, len(gids))
	}
}

// ResolveProjectIdentifier resolves a GID or exact project name.
func ResolveProjectIdentifier(ctx context.Context, q DBTX, identifier string) (string, error) {
	if isAllDigits(identifier) {
		return identifier, nil
	}
	return resolveByName(ctx, q, "dim_projects", "project_gid", identifier)
}

// ResolvePortfolioIdentifier resolves a GID or exact portfolio name.
func ResolvePortfolioIdentifier(ctx context.Context, q DBTX, identifier string) (string, error) {
	if isAllDigits(identifier) {
		return identifier, nil
	}
	return resolveByName(ctx, q, "dim_portfolios", "portfolio_gid", identifier)
}

// ResolveTeamIdentifier resolves a GID or exact team name.
func ResolveTeamIdentifier(ctx context.Context, q DBTX, identifier string) (string, error) {
	if isAllDigits(identifier) {
		return identifier, nil
	}
	return resolveByName(ctx, q, "dim_teams", "team_gid", identifier)
}

// ── Projects ───────────────────────────────────────────────────────

// UpsertProject stores a full project record. ON CONFLICT DO UPDATE keeps
// the integer id stable, which is required because projects_fts uses it as
// the content rowid.
func UpsertProject(ctx context.Context, q DBTX, p *asana.Project) error {
	var ownerGID, teamGID *string
	if p.Owner != nil {
		ownerGID = &p.Owner.GID
	}
	if p.Team != nil {
		teamGID = &p.Team.GID
	}
	workspaceGID := ""
	if p.Workspace != nil {
		workspaceGID = p.Workspace.GID
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO dim_projects (
			project_gid, name, owner_gid, team_gid, workspace_gid,
			is_archived, is_template, color, notes, notes_html,
			created_at, modified_at, permalink_url, cached_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(project_gid) DO UPDATE SET
			name=excluded.name, owner_gid=excluded.owner_gid, team_gid=excluded.team_gid,
			workspace_gid=excluded.workspace_gid, is_archived=excluded.is_archived,
			is_template=excluded.is_template, color=excluded.color, notes=excluded.notes,
			notes_html=excluded.notes_html, created_at=excluded.created_at,
			modified_at=excluded.modified_at, permalink_url=excluded.permalink_url,
			cached_at=excluded.cached_at`,
		p.GID, p.Name, ownerGID, teamGID, workspaceGID,
		boolToInt(p.Archived), boolToInt(p.IsTemplate), p.Color, p.Notes, p.HTMLNotes,
		p.CreatedAt, p.ModifiedAt, p.PermalinkURL)
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", p.GID, err)
	}
	return nil
}

// ── Tasks ──────────────────────────────────────────────────────────

// UpsertTask transforms an API task into the star schema: the wide
// ON CONFLICT upsert preserves the FTS rowid, then the task's bridge
// collections are rebuilt delete-and-insert from the authoritative
// upstream state. Must run inside a write transaction; the calendar is
// extended first so every referenced date key exists.
func UpsertTask(ctx context.Context, tx *sql.Tx, task *asana.Task, now time.Time) error {
	var assigneeGID, parentGID *string
	if task.Assignee != nil {
		assigneeGID = &task.Assignee.GID
	}
	if task.Parent != nil {
		parentGID = &task.Parent.GID
	}
	isSubtask := parentGID != nil

	createdAt := strDeref(task.CreatedAt)
	createdDateKey := dateKeyFromISO(createdAt)
	var completedDateKey *string
	if task.CompletedAt != nil {
		k := dateKeyFromISO(*task.CompletedAt)
		completedDateKey = &k
	}
	daysToComplete := computeDaysToComplete(createdAt, task.CompletedAt)
	isOverdue := computeIsOverdue(task.Completed, task.DueOn, now)

	if created, err := ParseDateKey(createdDateKey); err == nil {
		if err := ExtendCalendar(tx, created); err != nil {
			return err
		}
	}
	if completedDateKey != nil {
		if completed, err := ParseDateKey(*completedDateKey); err == nil {
			if err := ExtendCalendar(tx, completed); err != nil {
				return err
			}
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO fact_tasks (
			task_gid, name, notes, notes_html, assignee_gid,
			is_completed, completed_at, completed_date_key,
			due_on, due_at, start_on, start_at,
			created_at, created_date_key, modified_at,
			parent_gid, is_subtask, num_subtasks, num_likes,
			days_to_complete, is_overdue, permalink_url, cached_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(task_gid) DO UPDATE SET
			name=excluded.name, notes=excluded.notes, notes_html=excluded.notes_html,
			assignee_gid=excluded.assignee_gid, is_completed=excluded.is_completed,
			completed_at=excluded.completed_at, completed_date_key=excluded.completed_date_key,
			due_on=excluded.due_on, due_at=excluded.due_at, start_on=excluded.start_on,
			start_at=excluded.start_at, created_at=excluded.created_at,
			created_date_key=excluded.created_date_key, modified_at=excluded.modified_at,
			parent_gid=excluded.parent_gid, is_subtask=excluded.is_subtask,
			num_subtasks=excluded.num_subtasks, num_likes=excluded.num_likes,
			days_to_complete=excluded.days_to_complete, is_overdue=excluded.is_overdue,
			permalink_url=excluded.permalink_url, cached_at=excluded.cached_at`,
		task.GID, task.Name, task.Notes, task.HTMLNotes, assigneeGID,
		boolToInt(task.Completed), task.CompletedAt, completedDateKey,
		task.DueOn, task.DueAt, task.StartOn, task.StartAt,
		createdAt, createdDateKey, task.ModifiedAt,
		parentGID, boolToInt(isSubtask), task.NumSubtasks, task.NumLikes,
		daysToComplete, boolToInt(isOverdue), task.PermalinkURL)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", task.GID, err)
	}

	// Rebuild bridge collections from the authoritative present state.
	for _, table := range []string{
		"bridge_task_projects", "bridge_task_tags",
		"bridge_task_dependencies", "bridge_task_followers",
		"bridge_task_multi_enum_values", "fact_task_custom_fields",
	} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE task_gid = ?", task.GID); err != nil {
			return fmt.Errorf("failed to clear %s for task %s: %w", table, task.GID, err)
		}
	}

	for _, m := range task.Memberships {
		var sectionGID *string
		if m.Section != nil {
			sectionGID = &m.Section.GID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO bridge_task_projects (task_gid, project_gid, section_gid)
			VALUES (?, ?, ?)`,
			task.GID, m.Project.GID, sectionGID)
		if err != nil {
			return fmt.Errorf("failed to insert task membership: %w", err)
		}
	}

	for _, tag := range task.Tags {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO bridge_task_tags (task_gid, tag_gid, tag_name)
			VALUES (?, ?, ?)`,
			task.GID, tag.GID, strDeref(tag.Name))
		if err != nil {
			return fmt.Errorf("failed to insert task tag: %w", err)
		}
	}

	for _, dep := range task.Dependencies {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO bridge_task_dependencies (task_gid, depends_on_gid)
			VALUES (?, ?)`,
			task.GID, dep.GID)
		if err != nil {
			return fmt.Errorf("failed to insert task dependency: %w", err)
		}
	}

	for _, f := range task.Followers {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO bridge_task_followers (task_gid, user_gid)
			VALUES (?, ?)`,
			task.GID, f.GID)
		if err != nil {
			return fmt.Errorf("failed to insert task follower: %w", err)
		}
	}

	return upsertTaskCustomFields(ctx, tx, task.GID, task.CustomFields)
}

// upsertTaskCustomFields stores custom field definitions, values, enum
// options, multi-enum bridge rows, and the manually maintained
// custom_fields_fts rows for one task.
func upsertTaskCustomFields(ctx context.Context, tx *sql.Tx, taskGID string, fields []asana.CustomFieldValue) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM custom_fields_fts WHERE task_gid = ?", taskGID); err != nil {
		return fmt.Errorf("failed to clear custom_fields_fts for task %s: %w", taskGID, err)
	}

	for _, cf := range fields {
		display := strDeref(cf.DisplayValue)
		hasEnum := cf.EnumValue != nil
		hasMulti := len(cf.MultiEnumValues) > 0

		// Fields with no value of any kind are not stored.
		if display == "" && cf.TextValue == nil && cf.NumberValue == nil &&
			cf.DateValue == nil && len(cf.People) == 0 && !hasEnum && !hasMulti {
			continue
		}

		fieldType := "unknown"
		if cf.ResourceSubtype != nil {
			fieldType = strings.ToLower(*cf.ResourceSubtype)
		}
		fieldName := strDeref(cf.Name)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO dim_custom_fields (field_gid, name, field_type, cached_at)
			VALUES (?, ?, ?, datetime('now'))
			ON CONFLICT(field_gid) DO UPDATE SET
				name=excluded.name, field_type=excluded.field_type,
				cached_at=excluded.cached_at`,
			cf.GID, fieldName, fieldType)
		if err != nil {
			return fmt.Errorf("failed to upsert custom field %s: %w", cf.GID, err)
		}

		var enumGID *string
		if hasEnum {
			enumGID = &cf.EnumValue.GID
		}
		var dateVal *string
		if cf.DateValue != nil {
			dateVal = cf.DateValue.Date
		}
		textVal := cf.TextValue
		// People fields project the joined names into text_value.
		if len(cf.People) > 0 && textVal == nil {
			names := make([]string, 0, len(cf.People))
			for _, p := range cf.People {
				names = append(names, p.Name)
			}
			joined := strings.Join(names, ", ")
			textVal = &joined
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO fact_task_custom_fields (
				task_gid, field_gid, text_value, number_value, date_value,
				enum_value_gid, display_value
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			taskGID, cf.GID, textVal, cf.NumberValue, dateVal, enumGID, display)
		if err != nil {
			return fmt.Errorf("failed to upsert custom field value: %w", err)
		}

		if hasEnum {
			if err := UpsertEnumOption(ctx, tx, cf.GID, cf.EnumValue); err != nil {
				return err
			}
		}
		if hasMulti {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM bridge_task_multi_enum_values WHERE task_gid = ? AND field_gid = ?",
				taskGID, cf.GID); err != nil {
				return fmt.Errorf("failed to clear multi-enum values: %w", err)
			}
			for i := range cf.MultiEnumValues {
				opt := &cf.MultiEnumValues[i]
				if err := UpsertEnumOption(ctx, tx, cf.GID, opt); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT OR REPLACE INTO bridge_task_multi_enum_values (task_gid, field_gid, option_gid)
					VALUES (?, ?, ?)`,
					taskGID, cf.GID, opt.GID); err != nil {
					return fmt.Errorf("failed to insert multi-enum value: %w", err)
				}
			}
		}

		if display != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO custom_fields_fts (task_gid, field_name, display_value)
				VALUES (?, ?, ?)`,
				taskGID, fieldName, display); err != nil {
				return fmt.Errorf("failed to index custom field value: %w", err)
			}
		}
	}
	return nil
}

// UpsertEnumOption stores one enum option of a custom field.
func UpsertEnumOption(ctx context.Context, q DBTX, fieldGID string, opt *asana.EnumOption) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO dim_enum_options (field_gid, option_gid, name, color, enabled, cached_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))`,
		fieldGID, opt.GID, opt.Name, opt.Color, boolToInt(opt.Enabled))
	if err != nil {
		return fmt.Errorf("failed to upsert enum option %s: %w", opt.GID, err)
	}
	return nil
}

// DeleteTask removes a task. Comments, custom field values, bridge rows,
// and the summary row cascade via foreign keys; the manually maintained
// custom_fields_fts rows are removed here.
func DeleteTask(ctx context.Context, tx *sql.Tx, taskGID string) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM custom_fields_fts WHERE task_gid = ?", taskGID); err != nil {
		return fmt.Errorf("failed to delete custom field index for task %s: %w", taskGID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM fact_tasks WHERE task_gid = ?", taskGID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskGID, err)
	}
	return nil
}

// ── Comments ───────────────────────────────────────────────────────

// UpsertComment stores one comment story. The wide upsert preserves the
// FTS rowid on re-sync.
func UpsertComment(ctx context.Context, q DBTX, taskGID string, story *asana.Story) error {
	var authorGID *string
	if story.CreatedBy != nil {
		authorGID = &story.CreatedBy.GID
	}
	storyType := "unknown"
	if story.ResourceSubtype != nil {
		storyType = strings.ToLower(*story.ResourceSubtype)
	}
	createdAt := strDeref(story.CreatedAt)

	_, err := q.ExecContext(ctx, `
		INSERT INTO fact_comments (
			comment_gid, task_gid, author_gid, text, html_text,
			story_type, created_at, created_date_key, cached_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(comment_gid) DO UPDATE SET
			task_gid=excluded.task_gid, author_gid=excluded.author_gid,
			text=excluded.text, html_text=excluded.html_text,
			story_type=excluded.story_type, created_at=excluded.created_at,
			created_date_key=excluded.created_date_key, cached_at=excluded.cached_at`,
		story.GID, taskGID, authorGID, story.Text, story.HTMLText,
		storyType, createdAt, dateKeyFromISO(createdAt))
	if err != nil {
		return fmt.Errorf("failed to upsert comment %s: %w", story.GID, err)
	}
	return nil
}

// ── Status updates ─────────────────────────────────────────────────

// UpsertStatusUpdate stores one project or portfolio status update.
func UpsertStatusUpdate(ctx context.Context, q DBTX, parentGID, parentType string, s *asana.StatusUpdate) error {
	var authorGID *string
	if s.CreatedBy != nil {
		authorGID = &s.CreatedBy.GID
	}
	statusType := "none"
	if s.StatusType != nil {
		statusType = strings.ToLower(*s.StatusType)
	}
	createdAt := strDeref(s.CreatedAt)

	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO fact_status_updates (
			status_gid, parent_gid, parent_type, author_gid,
			title, text, html_text, status_type,
			created_at, created_date_key, cached_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		s.GID, parentGID, parentType, authorGID,
		strDeref(s.Title), s.Text, s.HTMLText, statusType,
		createdAt, dateKeyFromISO(createdAt))
	if err != nil {
		return fmt.Errorf("failed to upsert status update %s: %w", s.GID, err)
	}
	return nil
}

// ── Sections / teams / portfolios ──────────────────────────────────

// UpsertSection stores one project section.
func UpsertSection(ctx context.Context, q DBTX, projectGID, sectionGID, name string, sortOrder int) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO dim_sections (section_gid, project_gid, name, sort_order, cached_at)
		VALUES (?, ?, ?, ?, datetime('now'))`,
		sectionGID, projectGID, name, sortOrder)
	if err != nil {
		return fmt.Errorf("failed to upsert section %s: %w", sectionGID, err)
	}
	return nil
}

// UpsertTeam stores one team.
func UpsertTeam(ctx context.Context, q DBTX, teamGID, name, workspaceGID string, description *string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO dim_teams (team_gid, name, workspace_gid, description, cached_at)
		VALUES (?, ?, ?, ?, datetime('now'))`,
		teamGID, name, workspaceGID, description)
	if err != nil {
		return fmt.Errorf("failed to upsert team %s: %w", teamGID, err)
	}
	return nil
}

// UpsertTeamMember records team membership.
func UpsertTeamMember(ctx context.Context, q DBTX, teamGID, userGID string, role *string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO bridge_team_members (team_gid, user_gid, role)
		VALUES (?, ?, ?)`,
		teamGID, userGID, role)
	if err != nil {
		return fmt.Errorf("failed to upsert team member: %w", err)
	}
	return nil
}

// UpsertPortfolio stores one portfolio.
func UpsertPortfolio(ctx context.Context, q DBTX, p *asana.Portfolio) error {
	var ownerGID *string
	if p.Owner != nil {
		ownerGID = &p.Owner.GID
	}
	workspaceGID := ""
	if p.Workspace != nil {
		workspaceGID = p.Workspace.GID
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO dim_portfolios (
			portfolio_gid, name, owner_gid, workspace_gid, is_public, color, permalink_url, cached_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(portfolio_gid) DO UPDATE SET
			name=excluded.name, owner_gid=excluded.owner_gid,
			workspace_gid=excluded.workspace_gid, is_public=excluded.is_public,
			color=excluded.color, permalink_url=excluded.permalink_url,
			cached_at=excluded.cached_at`,
		p.GID, p.Name, ownerGID, workspaceGID, boolToInt(p.Public), p.Color, p.PermalinkURL)
	if err != nil {
		return fmt.Errorf("failed to upsert portfolio %s: %w", p.GID, err)
	}
	return nil
}

// UpsertPortfolioProject links a portfolio to a contained project.
func UpsertPortfolioProject(ctx context.Context, q DBTX, portfolioGID, projectGID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO bridge_portfolio_projects (portfolio_gid, project_gid)
		VALUES (?, ?)`,
		portfolioGID, projectGID)
	if err != nil {
		return fmt.Errorf("failed to link portfolio %s to project %s: %w", portfolioGID, projectGID, err)
	}
	return nil
}

// UpsertPortfolioPortfolio links a portfolio to a contained sub-portfolio.
func UpsertPortfolioPortfolio(ctx context.Context, q DBTX, parentGID, childGID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO bridge_portfolio_portfolios (parent_portfolio_gid, child_portfolio_gid)
		VALUES (?, ?)`,
		parentGID, childGID)
	if err != nil {
		return fmt.Errorf("failed to link portfolio %s to portfolio %s: %w", parentGID, childGID, err)
	}
	return nil
}

// ── Monitored entities ─────────────────────────────────────────────

// MonitoredEntity is a user/team/project/portfolio registered for
// recurring sync.
type MonitoredEntity struct {
	EntityKey   string
	EntityType  string
	EntityGID   string
	DisplayName *string
	AddedAt     string
	LastSyncAt  *string
	SyncEnabled bool
}

// AddMonitoredEntity registers an entity for recurring sync.
func AddMonitoredEntity(ctx context.Context, q DBTX, entityKey, entityType, entityGID string, displayName *string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO monitored_entities (entity_key, entity_type, entity_gid, display_name, added_at, sync_enabled)
		VALUES (?, ?, ?, ?, datetime('now'), 1)
		ON CONFLICT(entity_key) DO UPDATE SET
			display_name=excluded.display_name, sync_enabled=1`,
		entityKey, entityType, entityGID, displayName)
	if err != nil {
		return fmt.Errorf("failed to add monitored entity %s: %w", entityKey, err)
	}
	return nil
}

// EnsureEntityForSync creates a monitored_entities row with
// sync_enabled=0 so delta tokens and sync timestamps have a home for
// entities discovered indirectly (e.g. projects inside a synced
// portfolio). Existing rows, including user-added ones, are untouched.
func EnsureEntityForSync(ctx context.Context, q DBTX, entityKey, entityType, entityGID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO monitored_entities (entity_key, entity_type, entity_gid, added_at, sync_enabled)
		VALUES (?, ?, ?, datetime('now'), 0)`,
		entityKey, entityType, entityGID)
	if err != nil {
		return fmt.Errorf("failed to ensure entity %s: %w", entityKey, err)
	}
	return nil
}

// RemoveMonitoredEntity unregisters an entity. Returns false if it was
// not registered.
func RemoveMonitoredEntity(ctx context.Context, q DBTX, entityKey string) (bool, error) {
	res, err := q.ExecContext(ctx,
		"DELETE FROM monitored_entities WHERE entity_key = ?", entityKey)
	if err != nil {
		return false, fmt.Errorf("failed to remove monitored entity %s: %w", entityKey, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListMonitoredEntities returns the user-registered entities in
// registration order.
func ListMonitoredEntities(ctx context.Context, q DBTX) ([]MonitoredEntity, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT entity_key, entity_type, entity_gid, display_name, added_at, last_sync_at, sync_enabled
		FROM monitored_entities WHERE sync_enabled = 1 ORDER BY added_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored entities: %w", err)
	}
	defer rows.Close()

	var out []MonitoredEntity
	for rows.Next() {
		var e MonitoredEntity
		var enabled int
		if err := rows.Scan(&e.EntityKey, &e.EntityType, &e.EntityGID,
			&e.DisplayName, &e.AddedAt, &e.LastSyncAt, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan monitored entity: %w", err)
		}
		e.SyncEnabled = enabled != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// TouchEntitySyncTime records a successful sync for the entity.
func TouchEntitySyncTime(ctx context.Context, q DBTX, entityKey string) error {
	_, err := q.ExecContext(ctx,
		"UPDATE monitored_entities SET last_sync_at = datetime('now') WHERE entity_key = ?",
		entityKey)
	if err != nil {
		return fmt.Errorf("failed to touch sync time for %s: %w", entityKey, err)
	}
	return nil
}

// ── Events-delta tokens ────────────────────────────────────────────

// GetEventToken returns the stored events-delta token for an entity along
// with its age. A missing token returns ("", 0, nil).
func GetEventToken(ctx context.Context, q DBTX, entityKey string) (string, time.Duration, error) {
	var token, storedAt sql.NullString
	err := q.QueryRowContext(ctx,
		"SELECT event_sync_token, event_sync_token_at FROM monitored_entities WHERE entity_key = ?",
		entityKey).Scan(&token, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read event token for %s: %w", entityKey, err)
	}
	if !token.Valid || token.String == "" {
		return "", 0, nil
	}
	var age time.Duration
	if storedAt.Valid {
		if at, perr := time.Parse("2006-01-02 15:04:05", storedAt.String); perr == nil {
			age = time.Since(at.UTC())
		}
	}
	return token.String, age, nil
}

// SetEventToken stores a replacement events-delta token with the current
// timestamp.
func SetEventToken(ctx context.Context, q DBTX, entityKey, token string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE monitored_entities
		SET event_sync_token = ?, event_sync_token_at = datetime('now')
		WHERE entity_key = ?`,
		token, entityKey)
	if err != nil {
		return fmt.Errorf("failed to store event token for %s: %w", entityKey, err)
	}
	return nil
}

// ClearEventToken discards the stored token (used by --full).
func ClearEventToken(ctx context.Context, q DBTX, entityKey string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE monitored_entities
		SET event_sync_token = NULL, event_sync_token_at = NULL
		WHERE entity_key = ?`,
		entityKey)
	if err != nil {
		return fmt.Errorf("failed to clear event token for %s: %w", entityKey, err)
	}
	return nil
}

// ── Config ─────────────────────────────────────────────────────────

// GetConfig reads one app_config value; ("", false, nil) when absent.
func GetConfig(ctx context.Context, q DBTX, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx,
		"SELECT value FROM app_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read config %s: %w", key, err)
	}
	return value, true, nil
}

// SetConfig writes one app_config value.
func SetConfig(ctx context.Context, q DBTX, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO app_config (key, value, updated_at)
		VALUES (?, ?, datetime('now'))`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// ListConfig returns all app_config entries ordered by key.
func ListConfig(ctx context.Context, q DBTX) ([][2]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT key, value FROM app_config ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list config: %w", err)
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var kv [2]string
		if err := rows.Scan(&kv[0], &kv[1]); err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

// ── Sync jobs ──────────────────────────────────────────────────────

// InsertSyncJob records a new running sync job. A still-running job for
// the same entity acts as an advisory lock: the insert is refused with
// ErrSyncRunning.
func InsertSyncJob(ctx context.Context, q DBTX, entityKey, rangeStart, rangeEnd string) (int64, error) {
	var running int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_jobs WHERE entity_key = ? AND status = 'running'",
		entityKey).Scan(&running)
	if err != nil {
		return 0, fmt.Errorf("failed to check running jobs for %s: %w", entityKey, err)
	}
	if running > 0 {
		return 0, fmt.Errorf("%w: %s", ErrSyncRunning, entityKey)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO sync_jobs (entity_key, status, started_at, sync_range_start, sync_range_end)
		VALUES (?, 'running', datetime('now'), ?, ?)`,
		entityKey, rangeStart, rangeEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sync job for %s: %w", entityKey, err)
	}
	return res.LastInsertId()
}

// UpdateSyncJobProgress records per-batch progress on a running job.
func UpdateSyncJobProgress(ctx context.Context, q DBTX, jobID int64, syncedItems, failedItems int, batchesCompleted, batchesTotal int) error {
	_, err := q.ExecContext(ctx, `
		UPDATE sync_jobs SET
			synced_items = ?, failed_items = ?,
			batches_completed = ?, batches_total = ?
		WHERE id = ?`,
		syncedItems, failedItems, batchesCompleted, batchesTotal, jobID)
	if err != nil {
		return fmt.Errorf("failed to update sync job %d: %w", jobID, err)
	}
	return nil
}

// FinalizeSyncJob records the terminal status of a job.
func FinalizeSyncJob(ctx context.Context, q DBTX, jobID int64, status string, errorMessage *string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE sync_jobs SET status = ?, completed_at = datetime('now'), error_message = ?
		WHERE id = ?`,
		status, errorMessage, jobID)
	if err != nil {
		return fmt.Errorf("failed to finalize sync job %d: %w", jobID, err)
	}
	return nil
}

// ── Synced ranges ──────────────────────────────────────────────────

// InsertSyncedRange records a successfully synced [start, end] batch.
func InsertSyncedRange(ctx context.Context, q DBTX, entityKey, startDate, endDate string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO synced_ranges (entity_key, start_date, end_date, synced_at)
		VALUES (?, ?, ?, datetime('now'))`,
		entityKey, startDate, endDate)
	if err != nil {
		return fmt.Errorf("failed to insert synced range for %s: %w", entityKey, err)
	}
	return nil
}

// GetSyncedRanges returns the recorded ranges for an entity ordered by
// start date.
func GetSyncedRanges(ctx context.Context, q DBTX, entityKey string) ([][2]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT start_date, end_date FROM synced_ranges
		WHERE entity_key = ? ORDER BY start_date`,
		entityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read synced ranges for %s: %w", entityKey, err)
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var r [2]string
		if err := rows.Scan(&r[0], &r[1]); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ── Helpers ────────────────────────────────────────────────────────

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// dateKeyFromISO extracts YYYY-MM-DD from an ISO datetime string.
func dateKeyFromISO(iso string) string {
	if len(iso) >= 10 {
		return iso[:10]
	}
	return iso
}

func computeDaysToComplete(createdAt string, completedAt *string) *int {
	if completedAt == nil {
		return nil
	}
	created, err := ParseDateKey(dateKeyFromISO(createdAt))
	if err != nil {
		return nil
	}
	done, err := ParseDateKey(dateKeyFromISO(*completedAt))
	if err != nil {
		return nil
	}
	days := int(done.Sub(created).Hours() / 24)
	return &days
}

func computeIsOverdue(completed bool, dueOn *string, now time.Time) bool {
	if completed || dueOn == nil {
		return false
	}
	due, err := ParseDateKey(*dueOn)
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.After(due)
}

// JSONStrings marshals a string slice for storage in a TEXT column.
func JSONStrings(values []string) string {
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}
