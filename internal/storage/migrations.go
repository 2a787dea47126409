package storage

import (
	"fmt"
)

// migrations holds the declarative schema steps in order. The applied
// version is persisted in PRAGMA user_version; each pending step runs
// inside its own transaction.
var migrations = []string{
	migration001Initial,
	migration002PermalinkURLs,
}

func (db *DB) migrate() error {
	var version int
	if err := db.writer.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("migration: failed to read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("migration: database schema version %d is newer than this build (%d)", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.writer.Begin()
		if err != nil {
			return fmt.Errorf("migration %03d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %03d failed: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %03d: failed to record version: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %03d: %w", i+1, err)
		}
	}
	return nil
}

const migration001Initial = `
-- Dimensions

CREATE TABLE dim_users (
	user_gid TEXT PRIMARY KEY,
	email TEXT,
	name TEXT NOT NULL DEFAULT '',
	photo_url TEXT,
	cached_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX idx_users_email ON dim_users(email);

CREATE TABLE dim_projects (
	id INTEGER PRIMARY KEY,
	project_gid TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	owner_gid TEXT,
	team_gid TEXT,
	workspace_gid TEXT NOT NULL DEFAULT '',
	is_archived INTEGER NOT NULL DEFAULT 0,
	is_template INTEGER NOT NULL DEFAULT 0,
	color TEXT,
	notes TEXT,
	notes_html TEXT,
	created_at TEXT,
	modified_at TEXT,
	cached_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX idx_projects_team ON dim_projects(team_gid);

CREATE TABLE dim_portfolios (
	portfolio_gid TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	owner_gid TEXT,
	workspace_gid TEXT NOT NULL DEFAULT '',
	is_public INTEGER NOT NULL DEFAULT 0,
	color TEXT,
	cached_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE dim_teams (
	team_gid TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	workspace_gid TEXT NOT NULL DEFAULT '',
	description TEXT,
	cached_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE dim_sections (
	section_gid TEXT PRIMARY KEY,
	project_gid TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0,
	cached_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX idx_sections_project ON dim_sections(project_gid);

CREATE TABLE dim_custom_fields (
	field_gid TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	field_type TEXT NOT NULL DEFAULT 'unknown',
	cached_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE dim_enum_options (
	field_gid TEXT NOT NULL,
	option_gid TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	color TEXT,
	enabled INTEGER NOT NULL DEFAULT 1,
	cached_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (field_gid, option_gid)
);

CREATE TABLE dim_date (
	date_key TEXT PRIMARY KEY,
	year INTEGER NOT NULL,
	quarter INTEGER NOT NULL,
	month INTEGER NOT NULL,
	week INTEGER NOT NULL,
	day_of_week INTEGER NOT NULL,
	day_of_month INTEGER NOT NULL,
	day_of_year INTEGER NOT NULL,
	is_weekend INTEGER NOT NULL,
	is_first_day_of_month INTEGER NOT NULL,
	is_last_day_of_month INTEGER NOT NULL,
	is_first_day_of_quarter INTEGER NOT NULL,
	is_last_day_of_quarter INTEGER NOT NULL,
	year_key TEXT NOT NULL,
	half_key TEXT NOT NULL,
	quarter_key TEXT NOT NULL,
	month_key TEXT NOT NULL,
	week_key TEXT NOT NULL,
	day_of_quarter INTEGER NOT NULL,
	day_of_half INTEGER NOT NULL,
	prior_year_date_key TEXT,
	prior_quarter_date_key TEXT,
	prior_month_date_key TEXT
);

CREATE TABLE dim_period (
	period_key TEXT PRIMARY KEY,
	period_type TEXT NOT NULL,
	label TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	days_in_period INTEGER NOT NULL,
	prior_period_key TEXT
);
CREATE INDEX idx_period_type ON dim_period(period_type);

-- Facts

CREATE TABLE fact_tasks (
	id INTEGER PRIMARY KEY,
	task_gid TEXT NOT NULL UNIQUE,
	name TEXT,
	notes TEXT,
	notes_html TEXT,
	assignee_gid TEXT,
	is_completed INTEGER NOT NULL DEFAULT 0,
	completed_at TEXT,
	completed_date_key TEXT,
	due_on TEXT,
	due_at TEXT,
	start_on TEXT,
	start_at TEXT,
	created_at TEXT NOT NULL,
	created_date_key TEXT NOT NULL,
	modified_at TEXT,
	parent_gid TEXT,
	is_subtask INTEGER NOT NULL DEFAULT 0,
	num_subtasks INTEGER NOT NULL DEFAULT 0,
	num_likes INTEGER NOT NULL DEFAULT 0,
	days_to_complete INTEGER,
	is_overdue INTEGER NOT NULL DEFAULT 0,
	cached_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX idx_tasks_assignee ON fact_tasks(assignee_gid);
CREATE INDEX idx_tasks_created ON fact_tasks(created_date_key);
CREATE INDEX idx_tasks_completed ON fact_tasks(completed_date_key);
CREATE INDEX idx_tasks_parent ON fact_tasks(parent_gid);

CREATE TABLE fact_comments (
	id INTEGER PRIMARY KEY,
	comment_gid TEXT NOT NULL UNIQUE,
	task_gid TEXT NOT NULL REFERENCES fact_tasks(task_gid) ON DELETE CASCADE,
	author_gid TEXT,
	text TEXT,
	html_text TEXT,
	story_type TEXT NOT NULL DEFAULT 'unknown',
	created_at TEXT NOT NULL,
	created_date_key TEXT NOT NULL,
	cached_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX idx_comments_task ON fact_comments(task_gid);
CREATE INDEX idx_comments_created ON fact_comments(created_date_key);

CREATE TABLE fact_status_updates (
	status_gid TEXT PRIMARY KEY,
	parent_gid TEXT NOT NULL,
	parent_type TEXT NOT NULL,
	author_gid TEXT,
	title TEXT NOT NULL DEFAULT '',
	text TEXT,
	html_text TEXT,
	status_type TEXT NOT NULL DEFAULT 'none',
	created_at TEXT NOT NULL,
	created_date_key TEXT NOT NULL,
	cached_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX idx_status_parent ON fact_status_updates(parent_gid, created_date_key);

CREATE TABLE fact_task_custom_fields (
	task_gid TEXT NOT NULL REFERENCES fact_tasks(task_gid) ON DELETE CASCADE,
	field_gid TEXT NOT NULL,
	text_value TEXT,
	number_value REAL,
	date_value TEXT,
	enum_value_gid TEXT,
	display_value TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (task_gid, field_gid)
);

-- Summaries

CREATE TABLE fact_task_summaries (
	task_gid TEXT PRIMARY KEY REFERENCES fact_tasks(task_gid) ON DELETE CASCADE,
	headline TEXT NOT NULL,
	what_happened TEXT NOT NULL,
	why_it_matters TEXT NOT NULL,
	complexity_signal TEXT NOT NULL,
	notability_score INTEGER NOT NULL,
	change_types TEXT NOT NULL DEFAULT '[]',
	prompt_version TEXT NOT NULL,
	generated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE fact_user_period_summaries (
	user_gid TEXT NOT NULL,
	period_key TEXT NOT NULL,
	headline TEXT NOT NULL,
	narrative TEXT NOT NULL,
	highlights TEXT NOT NULL DEFAULT '[]',
	prompt_version TEXT NOT NULL,
	generated_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (user_gid, period_key)
);

CREATE TABLE fact_project_period_summaries (
	project_gid TEXT NOT NULL,
	period_key TEXT NOT NULL,
	headline TEXT NOT NULL,
	narrative TEXT NOT NULL,
	highlights TEXT NOT NULL DEFAULT '[]',
	prompt_version TEXT NOT NULL,
	generated_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (project_gid, period_key)
);

CREATE TABLE fact_portfolio_period_summaries (
	portfolio_gid TEXT NOT NULL,
	period_key TEXT NOT NULL,
	headline TEXT NOT NULL,
	narrative TEXT NOT NULL,
	highlights TEXT NOT NULL DEFAULT '[]',
	prompt_version TEXT NOT NULL,
	generated_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (portfolio_gid, period_key)
);

CREATE TABLE fact_team_period_summaries (
	team_gid TEXT NOT NULL,
	period_key TEXT NOT NULL,
	headline TEXT NOT NULL,
	narrative TEXT NOT NULL,
	highlights TEXT NOT NULL DEFAULT '[]',
	prompt_version TEXT NOT NULL,
	generated_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (team_gid, period_key)
);

-- Bridges

CREATE TABLE bridge_task_projects (
	task_gid TEXT NOT NULL REFERENCES fact_tasks(task_gid) ON DELETE CASCADE,
	project_gid TEXT NOT NULL,
	section_gid TEXT,
	PRIMARY KEY (task_gid, project_gid)
);
CREATE INDEX idx_btp_project ON bridge_task_projects(project_gid);

CREATE TABLE bridge_task_tags (
	task_gid TEXT NOT NULL REFERENCES fact_tasks(task_gid) ON DELETE CASCADE,
	tag_gid TEXT NOT NULL,
	tag_name TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (task_gid, tag_gid)
);
CREATE INDEX idx_btt_name ON bridge_task_tags(tag_name);

CREATE TABLE bridge_task_dependencies (
	task_gid TEXT NOT NULL REFERENCES fact_tasks(task_gid) ON DELETE CASCADE,
	depends_on_gid TEXT NOT NULL,
	PRIMARY KEY (task_gid, depends_on_gid)
);
CREATE INDEX idx_btd_depends ON bridge_task_dependencies(depends_on_gid);

CREATE TABLE bridge_task_followers (
	task_gid TEXT NOT NULL REFERENCES fact_tasks(task_gid) ON DELETE CASCADE,
	user_gid TEXT NOT NULL,
	PRIMARY KEY (task_gid, user_gid)
);

CREATE TABLE bridge_task_multi_enum_values (
	task_gid TEXT NOT NULL REFERENCES fact_tasks(task_gid) ON DELETE CASCADE,
	field_gid TEXT NOT NULL,
	option_gid TEXT NOT NULL,
	PRIMARY KEY (task_gid, field_gid, option_gid)
);

CREATE TABLE bridge_team_members (
	team_gid TEXT NOT NULL,
	user_gid TEXT NOT NULL,
	role TEXT,
	PRIMARY KEY (team_gid, user_gid)
);

CREATE TABLE bridge_portfolio_projects (
	portfolio_gid TEXT NOT NULL,
	project_gid TEXT NOT NULL,
	PRIMARY KEY (portfolio_gid, project_gid)
);

CREATE TABLE bridge_portfolio_portfolios (
	parent_portfolio_gid TEXT NOT NULL,
	child_portfolio_gid TEXT NOT NULL,
	PRIMARY KEY (parent_portfolio_gid, child_portfolio_gid)
);

-- Operational

CREATE TABLE monitored_entities (
	entity_key TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_gid TEXT NOT NULL,
	display_name TEXT,
	added_at TEXT NOT NULL DEFAULT (datetime('now')),
	last_sync_at TEXT,
	sync_enabled INTEGER NOT NULL DEFAULT 1,
	event_sync_token TEXT,
	event_sync_token_at TEXT
);

CREATE TABLE synced_ranges (
	entity_key TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	synced_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (entity_key, start_date, end_date)
);
CREATE INDEX idx_ranges_entity ON synced_ranges(entity_key, start_date);

CREATE TABLE sync_jobs (
	id INTEGER PRIMARY KEY,
	entity_key TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL DEFAULT (datetime('now')),
	completed_at TEXT,
	sync_range_start TEXT,
	sync_range_end TEXT,
	synced_items INTEGER NOT NULL DEFAULT 0,
	failed_items INTEGER NOT NULL DEFAULT 0,
	batches_completed INTEGER NOT NULL DEFAULT 0,
	batches_total INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE INDEX idx_jobs_entity ON sync_jobs(entity_key, status);

CREATE TABLE app_config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Full-text search.
--
-- The four content-synced tables mirror their base table via triggers.
-- Nullable indexed columns are coerced to '' in BOTH the delete and the
-- insert payloads; a NULL-vs-empty mismatch between the old and new rows
-- corrupts the index silently.

CREATE VIRTUAL TABLE tasks_fts USING fts5(
	name, notes,
	content='fact_tasks', content_rowid='id'
);

CREATE TRIGGER fact_tasks_fts_ai AFTER INSERT ON fact_tasks BEGIN
	INSERT INTO tasks_fts(rowid, name, notes)
	VALUES (new.id, COALESCE(new.name, ''), COALESCE(new.notes, ''));
END;
CREATE TRIGGER fact_tasks_fts_ad AFTER DELETE ON fact_tasks BEGIN
	INSERT INTO tasks_fts(tasks_fts, rowid, name, notes)
	VALUES ('delete', old.id, COALESCE(old.name, ''), COALESCE(old.notes, ''));
END;
CREATE TRIGGER fact_tasks_fts_au AFTER UPDATE ON fact_tasks BEGIN
	INSERT INTO tasks_fts(tasks_fts, rowid, name, notes)
	VALUES ('delete', old.id, COALESCE(old.name, ''), COALESCE(old.notes, ''));
	INSERT INTO tasks_fts(rowid, name, notes)
	VALUES (new.id, COALESCE(new.name, ''), COALESCE(new.notes, ''));
END;

CREATE VIRTUAL TABLE comments_fts USING fts5(
	text,
	content='fact_comments', content_rowid='id'
);

CREATE TRIGGER fact_comments_fts_ai AFTER INSERT ON fact_comments BEGIN
	INSERT INTO comments_fts(rowid, text) VALUES (new.id, COALESCE(new.text, ''));
END;
CREATE TRIGGER fact_comments_fts_ad AFTER DELETE ON fact_comments BEGIN
	INSERT INTO comments_fts(comments_fts, rowid, text)
	VALUES ('delete', old.id, COALESCE(old.text, ''));
END;
CREATE TRIGGER fact_comments_fts_au AFTER UPDATE ON fact_comments BEGIN
	INSERT INTO comments_fts(comments_fts, rowid, text)
	VALUES ('delete', old.id, COALESCE(old.text, ''));
	INSERT INTO comments_fts(rowid, text) VALUES (new.id, COALESCE(new.text, ''));
END;

CREATE VIRTUAL TABLE projects_fts USING fts5(
	name, notes,
	content='dim_projects', content_rowid='id'
);

CREATE TRIGGER dim_projects_fts_ai AFTER INSERT ON dim_projects BEGIN
	INSERT INTO projects_fts(rowid, name, notes)
	VALUES (new.id, COALESCE(new.name, ''), COALESCE(new.notes, ''));
END;
CREATE TRIGGER dim_projects_fts_ad AFTER DELETE ON dim_projects BEGIN
	INSERT INTO projects_fts(projects_fts, rowid, name, notes)
	VALUES ('delete', old.id, COALESCE(old.name, ''), COALESCE(old.notes, ''));
END;
CREATE TRIGGER dim_projects_fts_au AFTER UPDATE ON dim_projects BEGIN
	INSERT INTO projects_fts(projects_fts, rowid, name, notes)
	VALUES ('delete', old.id, COALESCE(old.name, ''), COALESCE(old.notes, ''));
	INSERT INTO projects_fts(rowid, name, notes)
	VALUES (new.id, COALESCE(new.name, ''), COALESCE(new.notes, ''));
END;

CREATE VIRTUAL TABLE portfolios_fts USING fts5(
	name,
	content='dim_portfolios'
);

CREATE TRIGGER dim_portfolios_fts_ai AFTER INSERT ON dim_portfolios BEGIN
	INSERT INTO portfolios_fts(rowid, name) VALUES (new.rowid, COALESCE(new.name, ''));
END;
CREATE TRIGGER dim_portfolios_fts_ad AFTER DELETE ON dim_portfolios BEGIN
	INSERT INTO portfolios_fts(portfolios_fts, rowid, name)
	VALUES ('delete', old.rowid, COALESCE(old.name, ''));
END;
CREATE TRIGGER dim_portfolios_fts_au AFTER UPDATE ON dim_portfolios BEGIN
	INSERT INTO portfolios_fts(portfolios_fts, rowid, name)
	VALUES ('delete', old.rowid, COALESCE(old.name, ''));
	INSERT INTO portfolios_fts(rowid, name) VALUES (new.rowid, COALESCE(new.name, ''));
END;

-- Maintained by the repository, not by triggers: rows are replaced
-- whenever a task's custom field values are refreshed.
CREATE VIRTUAL TABLE custom_fields_fts USING fts5(
	task_gid UNINDEXED, field_name, display_value
);
`

const migration002PermalinkURLs = `
ALTER TABLE fact_tasks ADD COLUMN permalink_url TEXT;
ALTER TABLE dim_projects ADD COLUMN permalink_url TEXT;
ALTER TABLE dim_portfolios ADD COLUMN permalink_url TEXT;
`
