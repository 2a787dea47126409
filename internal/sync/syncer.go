package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/adlio/asanadw/internal/asana"
	"github.com/adlio/asanadw/internal/storage"
)

// maxPortfolioDepth bounds recursive sub-portfolio traversal.
const maxPortfolioDepth = 6

// Engine orchestrates full and incremental syncs per entity type.
type Engine struct {
	db     *storage.DB
	client asana.Client
	gov    *Governor
	logger *log.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewEngine builds a sync engine. A nil logger defaults to stderr.
func NewEngine(db *storage.DB, client asana.Client, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		db:     db,
		client: client,
		gov:    NewGovernor(logger),
		logger: logger,
		now:    time.Now,
	}
}

func (e *Engine) today() time.Time {
	n := e.now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// SyncProject syncs one project: metadata, sections, tasks, comments,
// status updates, custom field definitions and values.
func (e *Engine) SyncProject(ctx context.Context, projectGID string, opts Options) (*Report, error) {
	started := e.now()
	entityKey := "project:" + projectGID
	today := e.today()
	desiredStart := opts.SinceDate(today)
	desiredEnd := today

	// Project metadata and sections come first so FK targets exist before
	// any task rows reference them.
	var project *asana.Project
	if err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		project, err = e.client.GetProject(ctx, projectGID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("sync %s: failed to fetch project: %w", entityKey, err)
	}
	var sections []asana.Section
	if err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		sections, err = e.client.ListProjectSections(ctx, projectGID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("sync %s: failed to fetch sections: %w", entityKey, err)
	}

	var jobID int64
	err := e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := storage.EnsureEntityForSync(ctx, tx, entityKey, "project", projectGID); err != nil {
			return err
		}
		if project.Owner != nil {
			if err := storage.UpsertUserMinimal(ctx, tx, project.Owner.GID, project.Owner.Name, nil); err != nil {
				return err
			}
		}
		if project.Team != nil {
			workspaceGID := ""
			if project.Workspace != nil {
				workspaceGID = project.Workspace.GID
			}
			if err := storage.UpsertTeam(ctx, tx, project.Team.GID, project.Team.Name, workspaceGID, nil); err != nil {
				return err
			}
		}
		if err := storage.UpsertProject(ctx, tx, project); err != nil {
			return err
		}
		for i, s := range sections {
			if err := storage.UpsertSection(ctx, tx, projectGID, s.GID, s.Name, i); err != nil {
				return err
			}
		}
		var err error
		jobID, err = storage.InsertSyncJob(ctx, tx, entityKey,
			storage.DateKey(desiredStart), storage.DateKey(desiredEnd))
		return err
	})
	if err != nil {
		return nil, err
	}

	report := e.runTaskBatches(ctx, jobID, entityKey, desiredStart, desiredEnd, opts,
		func(ctx context.Context, batch DateRange) ([]asana.Task, error) {
			return e.fetchProjectBatch(ctx, projectGID, batch)
		},
		func(ctx context.Context) ([]asana.Task, error) {
			return e.fetchProjectBatch(ctx, projectGID, DateRange{Start: desiredStart, End: desiredEnd})
		},
		projectGID, true)

	// Status updates are project-level, not date-partitioned; refresh them
	// once per sync in their own transaction.
	if report.Status != StatusFailed {
		if err := e.syncStatusUpdates(ctx, projectGID, "project"); err != nil {
			e.logger.Printf("sync %s: failed to sync status updates: %v", entityKey, err)
		}
	}

	report.Duration = e.now().Sub(started)
	return report, nil
}

// fetchProjectBatch lists the project's tasks and keeps those whose
// modification (or creation) date falls inside the batch. The project
// task listing has no modified_since filter; completed_since bounds the
// result to incomplete tasks plus recently completed ones.
func (e *Engine) fetchProjectBatch(ctx context.Context, projectGID string, batch DateRange) ([]asana.Task, error) {
	var tasks []asana.Task
	err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		tasks, err = e.client.ListProjectTasks(ctx, projectGID, asana.TaskListOptions{
			CompletedSince: batch.Start,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	startKey := storage.DateKey(batch.Start)
	endKey := storage.DateKey(batch.End)
	kept := make([]asana.Task, 0, len(tasks))
	for _, t := range tasks {
		key := taskActivityDateKey(&t)
		if key >= startKey && key <= endKey {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

// taskActivityDateKey is the date used to assign a task to a batch: the
// modification date when present, else the creation date.
func taskActivityDateKey(t *asana.Task) string {
	if t.ModifiedAt != nil && len(*t.ModifiedAt) >= 10 {
		return (*t.ModifiedAt)[:10]
	}
	if t.CreatedAt != nil && len(*t.CreatedAt) >= 10 {
		return (*t.CreatedAt)[:10]
	}
	return ""
}

// SyncUser syncs the tasks assigned to one user across the workspace.
func (e *Engine) SyncUser(ctx context.Context, workspaceGID, userGID string, opts Options) (*Report, error) {
	started := e.now()
	entityKey := "user:" + userGID
	today := e.today()
	desiredStart := opts.SinceDate(today)
	desiredEnd := today

	var jobID int64
	err := e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := storage.EnsureEntityForSync(ctx, tx, entityKey, "user", userGID); err != nil {
			return err
		}
		var err error
		jobID, err = storage.InsertSyncJob(ctx, tx, entityKey,
			storage.DateKey(desiredStart), storage.DateKey(desiredEnd))
		return err
	})
	if err != nil {
		return nil, err
	}

	report := e.runTaskBatches(ctx, jobID, entityKey, desiredStart, desiredEnd, opts,
		func(ctx context.Context, batch DateRange) ([]asana.Task, error) {
			return e.fetchWorkspaceBatch(ctx, workspaceGID, userGID, batch)
		},
		func(ctx context.Context) ([]asana.Task, error) {
			return e.fetchWorkspaceBatch(ctx, workspaceGID, userGID,
				DateRange{Start: desiredStart, End: desiredEnd})
		},
		userGID, false)

	report.Duration = e.now().Sub(started)
	return report, nil
}

func (e *Engine) fetchWorkspaceBatch(ctx context.Context, workspaceGID, userGID string, batch DateRange) ([]asana.Task, error) {
	var tasks []asana.Task
	err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		tasks, err = e.client.SearchWorkspaceTasks(ctx, workspaceGID, asana.TaskListOptions{
			ModifiedSince: batch.Start,
			AssigneeGID:   userGID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	endKey := storage.DateKey(batch.End)
	kept := make([]asana.Task, 0, len(tasks))
	for _, t := range tasks {
		if key := taskActivityDateKey(&t); key <= endKey {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

// runTaskBatches is the shared core of the per-entity sync algorithm:
// gap detection, the incremental-vs-full decision, month batches with
// per-batch transactions and failure isolation, progress delivery, and
// job finalization.
func (e *Engine) runTaskBatches(
	ctx context.Context,
	jobID int64,
	entityKey string,
	desiredStart, desiredEnd time.Time,
	opts Options,
	fetchBatch func(context.Context, DateRange) ([]asana.Task, error),
	fetchBulk func(context.Context) ([]asana.Task, error),
	resourceGID string,
	withComments bool,
) *Report {
	report := &Report{EntityKey: entityKey}

	synced, err := e.loadSyncedRanges(ctx, entityKey)
	if err != nil {
		e.failJob(ctx, jobID, report, err)
		return report
	}
	gaps := FindGaps(desiredStart, desiredEnd, synced)
	report.BatchesTotal = len(gaps)

	if opts.Full {
		_ = e.db.WriteTx(ctx, func(tx *sql.Tx) error {
			return storage.ClearEventToken(ctx, tx, entityKey)
		})
	}

	// Incremental path: only meaningful when the desired range is already
	// covered. Uncovered ranges always take the bulk path below.
	if len(gaps) == 0 && !opts.Full {
		e.runDeltaPass(ctx, entityKey, resourceGID, withComments, fetchBulk, report)
		e.finishJob(ctx, jobID, entityKey, report)
		return report
	}

	batchesFailed := 0
	for i, batch := range gaps {
		if ctx.Err() != nil {
			report.FailedRanges = append(report.FailedRanges, gaps[i:]...)
			batchesFailed += len(gaps) - i
			break
		}

		n, err := e.runOneBatch(ctx, entityKey, batch, fetchBatch, withComments)
		if err != nil {
			e.logger.Printf("sync %s: batch %s..%s failed: %v",
				entityKey, storage.DateKey(batch.Start), storage.DateKey(batch.End), err)
			report.FailedRanges = append(report.FailedRanges, batch)
			report.FailedItems++
			batchesFailed++
			continue
		}

		report.BatchesCompleted++
		report.SyncedItems += n
		report.TotalItems += n

		_ = e.db.WriteTx(ctx, func(tx *sql.Tx) error {
			return storage.UpdateSyncJobProgress(ctx, tx, jobID,
				report.SyncedItems, report.FailedItems,
				report.BatchesCompleted, report.BatchesTotal)
		})

		if opts.Progress != nil {
			opts.Progress(ProgressEvent{
				EntityKey:  entityKey,
				BatchIndex: i,
				BatchTotal: len(gaps),
				Start:      batch.Start,
				End:        batch.End,
				ItemsSoFar: report.SyncedItems,
			})
		}
	}

	report.Status = statusFromCounts(report.BatchesCompleted, batchesFailed)

	// A fresh delta token after a successful bulk pass arms the
	// incremental path for the next invocation.
	if report.Status != StatusFailed {
		e.refreshEventToken(ctx, entityKey, resourceGID)
	}

	e.finishJob(ctx, jobID, entityKey, report)
	return report
}

// runOneBatch fetches and transactionally ingests a single month batch,
// returning the number of tasks written.
func (e *Engine) runOneBatch(
	ctx context.Context,
	entityKey string,
	batch DateRange,
	fetchBatch func(context.Context, DateRange) ([]asana.Task, error),
	withComments bool,
) (int, error) {
	tasks, err := fetchBatch(ctx, batch)
	if err != nil {
		return 0, err
	}

	comments := make(map[string][]asana.Story)
	if withComments {
		for _, t := range tasks {
			taskGID := t.GID
			var stories []asana.Story
			err := e.gov.Do(ctx, func(ctx context.Context) error {
				var err error
				stories, err = e.client.ListTaskComments(ctx, taskGID)
				return err
			})
			if err != nil {
				// Comment fetch failures degrade the task, not the batch.
				e.logger.Printf("sync %s: failed to fetch comments for task %s: %v", entityKey, taskGID, err)
				continue
			}
			comments[taskGID] = stories
		}
	}

	err = e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := e.ingestTasks(ctx, tx, tasks, comments); err != nil {
			return err
		}
		return storage.InsertSyncedRange(ctx, tx, entityKey,
			storage.DateKey(batch.Start), storage.DateKey(batch.End))
	})
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// ingestTasks writes tasks and their comments inside one transaction.
// Referenced users are upserted first so assignee and author references
// resolve.
func (e *Engine) ingestTasks(ctx context.Context, tx *sql.Tx, tasks []asana.Task, comments map[string][]asana.Story) error {
	now := e.now()
	for i := range tasks {
		t := &tasks[i]
		if t.Assignee != nil {
			if err := storage.UpsertUserMinimal(ctx, tx, t.Assignee.GID, t.Assignee.Name, t.Assignee.Email); err != nil {
				return err
			}
		}
		for _, f := range t.Followers {
			if err := storage.UpsertUserMinimal(ctx, tx, f.GID, f.Name, nil); err != nil {
				return err
			}
		}
	}
	for _, stories := range comments {
		for i := range stories {
			if author := stories[i].CreatedBy; author != nil {
				if err := storage.UpsertUserMinimal(ctx, tx, author.GID, author.Name, author.Email); err != nil {
					return err
				}
			}
		}
	}

	for i := range tasks {
		if err := storage.UpsertTask(ctx, tx, &tasks[i], now); err != nil {
			return err
		}
	}
	for taskGID, stories := range comments {
		for i := range stories {
			if err := storage.UpsertComment(ctx, tx, taskGID, &stories[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// runDeltaPass handles the incremental case: the desired window is fully
// covered, so only upstream changes since the stored token matter.
func (e *Engine) runDeltaPass(
	ctx context.Context,
	entityKey, resourceGID string,
	withComments bool,
	fetchBulk func(context.Context) ([]asana.Task, error),
	report *Report,
) {
	token, age, err := e.loadEventToken(ctx, entityKey)
	if err != nil {
		e.logger.Printf("sync %s: failed to load event token: %v", entityKey, err)
	}

	if token == "" || age > tokenMaxAge {
		// No usable token: one bulk modified-since pass over the window,
		// then arm a fresh token.
		e.runBulkPass(ctx, entityKey, withComments, fetchBulk, report)
		e.refreshEventToken(ctx, entityKey, resourceGID)
		return
	}

	var page *asana.EventsPage
	err = e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		page, err = e.client.Events(ctx, resourceGID, token)
		return err
	})
	if err != nil {
		var expired *asana.TokenExpiredError
		if errors.As(err, &expired) {
			e.runBulkPass(ctx, entityKey, withComments, fetchBulk, report)
			if expired.NewToken != "" {
				e.storeEventToken(ctx, entityKey, expired.NewToken)
			} else {
				e.refreshEventToken(ctx, entityKey, resourceGID)
			}
			return
		}
		e.logger.Printf("sync %s: events poll failed: %v", entityKey, err)
		report.Status = StatusFailed
		report.Err = err
		return
	}

	changed := changedTaskGIDs(page.Events)
	switch {
	case len(changed) == 0:
		// Nothing changed upstream; success with zero work.
		report.Status = StatusCompleted
	case len(changed) <= deltaChangeLimit:
		n, err := e.ingestTaskGIDs(ctx, changed, withComments)
		report.SyncedItems += n
		report.TotalItems += n
		if err != nil {
			e.logger.Printf("sync %s: delta ingest failed: %v", entityKey, err)
			report.Status = StatusFailed
			report.Err = err
			return
		}
		report.Status = StatusCompleted
	default:
		// More round-trips than a bulk fetch is worth.
		e.runBulkPass(ctx, entityKey, withComments, fetchBulk, report)
	}

	if page.NextToken != "" {
		e.storeEventToken(ctx, entityKey, page.NextToken)
	}
}

// runBulkPass fetches the whole window in one batch transaction.
func (e *Engine) runBulkPass(
	ctx context.Context,
	entityKey string,
	withComments bool,
	fetchBulk func(context.Context) ([]asana.Task, error),
	report *Report,
) {
	tasks, err := fetchBulk(ctx)
	if err != nil {
		e.logger.Printf("sync %s: bulk fetch failed: %v", entityKey, err)
		report.Status = StatusFailed
		report.Err = err
		return
	}

	comments := make(map[string][]asana.Story)
	if withComments {
		for _, t := range tasks {
			taskGID := t.GID
			var stories []asana.Story
			if err := e.gov.Do(ctx, func(ctx context.Context) error {
				var err error
				stories, err = e.client.ListTaskComments(ctx, taskGID)
				return err
			}); err != nil {
				e.logger.Printf("sync %s: failed to fetch comments for task %s: %v", entityKey, taskGID, err)
				continue
			}
			comments[taskGID] = stories
		}
	}

	err = e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		return e.ingestTasks(ctx, tx, tasks, comments)
	})
	if err != nil {
		e.logger.Printf("sync %s: bulk ingest failed: %v", entityKey, err)
		report.Status = StatusFailed
		report.Err = err
		return
	}
	report.SyncedItems += len(tasks)
	report.TotalItems += len(tasks)
	report.Status = StatusCompleted
}

// ingestTaskGIDs fetches each changed task individually and writes them
// in one transaction.
func (e *Engine) ingestTaskGIDs(ctx context.Context, gids []string, withComments bool) (int, error) {
	var tasks []asana.Task
	for _, gid := range gids {
		taskGID := gid
		var task *asana.Task
		err := e.gov.Do(ctx, func(ctx context.Context) error {
			var err error
			task, err = e.client.GetTask(ctx, taskGID)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("failed to fetch task %s: %w", taskGID, err)
		}
		tasks = append(tasks, *task)
	}

	comments := make(map[string][]asana.Story)
	if withComments {
		for _, t := range tasks {
			taskGID := t.GID
			var stories []asana.Story
			if err := e.gov.Do(ctx, func(ctx context.Context) error {
				var err error
				stories, err = e.client.ListTaskComments(ctx, taskGID)
				return err
			}); err != nil {
				continue
			}
			comments[taskGID] = stories
		}
	}

	err := e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		return e.ingestTasks(ctx, tx, tasks, comments)
	})
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// changedTaskGIDs extracts the distinct task GIDs touched by a batch of
// events.
func changedTaskGIDs(events []asana.Event) []string {
	seen := make(map[string]bool)
	var gids []string
	for _, ev := range events {
		if ev.Resource.ResourceType != "task" || ev.Resource.GID == "" {
			continue
		}
		if ev.Action == "deleted" || ev.Action == "removed" {
			continue
		}
		if !seen[ev.Resource.GID] {
			seen[ev.Resource.GID] = true
			gids = append(gids, ev.Resource.GID)
		}
	}
	return gids
}

// SyncTeam syncs a team: its members, its projects, and those projects'
// tasks. Project failures degrade the team report, never abort it.
func (e *Engine) SyncTeam(ctx context.Context, workspaceGID, teamGID string, opts Options) (*Report, error) {
	started := e.now()
	entityKey := "team:" + teamGID
	report := &Report{EntityKey: entityKey}

	var team *asana.Team
	if err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		team, err = e.client.GetTeam(ctx, teamGID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("sync %s: failed to fetch team: %w", entityKey, err)
	}
	var members []asana.TeamMember
	if err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		members, err = e.client.ListTeamMembers(ctx, teamGID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("sync %s: failed to fetch members: %w", entityKey, err)
	}

	err := e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := storage.EnsureEntityForSync(ctx, tx, entityKey, "team", teamGID); err != nil {
			return err
		}
		if err := storage.UpsertTeam(ctx, tx, teamGID, team.Name, workspaceGID, team.Description); err != nil {
			return err
		}
		for _, m := range members {
			if err := storage.UpsertUserMinimal(ctx, tx, m.GID, m.Name, m.Email); err != nil {
				return err
			}
			if err := storage.UpsertTeamMember(ctx, tx, teamGID, m.GID, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var projects []asana.ProjectRef
	if err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		projects, err = e.client.ListTeamProjects(ctx, teamGID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("sync %s: failed to fetch projects: %w", entityKey, err)
	}

	completed, failed := 0, 0
	for _, p := range projects {
		if p.Archived {
			report.SkippedItems++
			continue
		}
		sub, err := e.SyncProject(ctx, p.GID, opts)
		if err != nil {
			e.logger.Printf("sync %s: project %s (%s) failed: %v", entityKey, p.Name, p.GID, err)
			failed++
			continue
		}
		mergeSubReport(report, sub)
		if sub.Status == StatusFailed {
			failed++
		} else {
			completed++
		}
	}
	report.Status = statusFromCounts(completed, failed)
	e.touchEntity(ctx, entityKey)
	report.Duration = e.now().Sub(started)
	return report, nil
}

// SyncPortfolio syncs a portfolio: its projects plus recursively
// contained sub-portfolios up to six levels deep, cycle-guarded.
func (e *Engine) SyncPortfolio(ctx context.Context, portfolioGID string, opts Options) (*Report, error) {
	started := e.now()
	report := &Report{EntityKey: "portfolio:" + portfolioGID}
	visited := make(map[string]bool)
	completed, failed := 0, 0
	e.syncPortfolioRec(ctx, portfolioGID, opts, report, visited, 0, &completed, &failed)
	report.Status = statusFromCounts(completed, failed)
	e.touchEntity(ctx, report.EntityKey)
	report.Duration = e.now().Sub(started)
	return report, nil
}

func (e *Engine) syncPortfolioRec(
	ctx context.Context,
	portfolioGID string,
	opts Options,
	report *Report,
	visited map[string]bool,
	depth int,
	completed, failed *int,
) {
	if depth >= maxPortfolioDepth || visited[portfolioGID] {
		return
	}
	visited[portfolioGID] = true
	entityKey := "portfolio:" + portfolioGID

	var portfolio *asana.Portfolio
	if err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		portfolio, err = e.client.GetPortfolio(ctx, portfolioGID)
		return err
	}); err != nil {
		e.logger.Printf("sync %s: failed to fetch portfolio: %v", entityKey, err)
		*failed++
		return
	}

	err := e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := storage.EnsureEntityForSync(ctx, tx, entityKey, "portfolio", portfolioGID); err != nil {
			return err
		}
		if portfolio.Owner != nil {
			if err := storage.UpsertUserMinimal(ctx, tx, portfolio.Owner.GID, portfolio.Owner.Name, nil); err != nil {
				return err
			}
		}
		return storage.UpsertPortfolio(ctx, tx, portfolio)
	})
	if err != nil {
		e.logger.Printf("sync %s: failed to store portfolio: %v", entityKey, err)
		*failed++
		return
	}

	var items []asana.PortfolioItem
	if err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		items, err = e.client.ListPortfolioItems(ctx, portfolioGID)
		return err
	}); err != nil {
		e.logger.Printf("sync %s: failed to list items: %v", entityKey, err)
		*failed++
		return
	}

	for _, item := range items {
		switch item.ResourceType {
		case "project":
			sub, err := e.SyncProject(ctx, item.GID, opts)
			if err != nil {
				e.logger.Printf("sync %s: project %s failed: %v", entityKey, item.GID, err)
				*failed++
				continue
			}
			mergeSubReport(report, sub)
			if sub.Status == StatusFailed {
				*failed++
			} else {
				*completed++
			}
			// Link only after the project row exists.
			_ = e.db.WriteTx(ctx, func(tx *sql.Tx) error {
				return storage.UpsertPortfolioProject(ctx, tx, portfolioGID, item.GID)
			})
		case "portfolio":
			_ = e.db.WriteTx(ctx, func(tx *sql.Tx) error {
				return storage.UpsertPortfolioPortfolio(ctx, tx, portfolioGID, item.GID)
			})
			e.syncPortfolioRec(ctx, item.GID, opts, report, visited, depth+1, completed, failed)
		}
	}
}

// syncStatusUpdates refreshes the status updates for a project or
// portfolio.
func (e *Engine) syncStatusUpdates(ctx context.Context, parentGID, parentType string) error {
	var updates []asana.StatusUpdate
	if err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		updates, err = e.client.ListStatusUpdates(ctx, parentGID)
		return err
	}); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	return e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		for i := range updates {
			u := &updates[i]
			if u.CreatedBy != nil {
				if err := storage.UpsertUserMinimal(ctx, tx, u.CreatedBy.GID, u.CreatedBy.Name, nil); err != nil {
					return err
				}
			}
			if err := storage.UpsertStatusUpdate(ctx, tx, parentGID, parentType, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// ── small helpers ──────────────────────────────────────────────────

func (e *Engine) loadSyncedRanges(ctx context.Context, entityKey string) ([]DateRange, error) {
	raw, err := storage.GetSyncedRanges(ctx, e.db.Reader(), entityKey)
	if err != nil {
		return nil, err
	}
	var out []DateRange
	for _, r := range raw {
		start, err1 := storage.ParseDateKey(r[0])
		end, err2 := storage.ParseDateKey(r[1])
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, DateRange{Start: start, End: end})
	}
	return out, nil
}

func (e *Engine) loadEventToken(ctx context.Context, entityKey string) (string, time.Duration, error) {
	return storage.GetEventToken(ctx, e.db.Reader(), entityKey)
}

func (e *Engine) storeEventToken(ctx context.Context, entityKey, token string) {
	err := e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		return storage.SetEventToken(ctx, tx, entityKey, token)
	})
	if err != nil {
		e.logger.Printf("sync %s: failed to store event token: %v", entityKey, err)
	}
}

// refreshEventToken asks the server to mint a baseline token for the next
// incremental pass. Failures are logged, not fatal: the next sync simply
// takes the bulk path again.
func (e *Engine) refreshEventToken(ctx context.Context, entityKey, resourceGID string) {
	var page *asana.EventsPage
	err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		page, err = e.client.Events(ctx, resourceGID, "")
		return err
	})
	token := ""
	if page != nil {
		token = page.NextToken
	}
	if err != nil {
		var expired *asana.TokenExpiredError
		if errors.As(err, &expired) && expired.NewToken != "" {
			token = expired.NewToken
		} else {
			e.logger.Printf("sync %s: failed to mint event token: %v", entityKey, err)
			return
		}
	}
	if token != "" {
		e.storeEventToken(ctx, entityKey, token)
	}
}

func (e *Engine) touchEntity(ctx context.Context, entityKey string) {
	err := e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		return storage.TouchEntitySyncTime(ctx, tx, entityKey)
	})
	if err != nil {
		e.logger.Printf("sync %s: failed to record sync time: %v", entityKey, err)
	}
}

func (e *Engine) failJob(ctx context.Context, jobID int64, report *Report, err error) {
	report.Status = StatusFailed
	report.Err = err
	msg := err.Error()
	_ = e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		return storage.FinalizeSyncJob(ctx, tx, jobID, string(StatusFailed), &msg)
	})
}

func (e *Engine) finishJob(ctx context.Context, jobID int64, entityKey string, report *Report) {
	var msg *string
	if report.Err != nil {
		m := report.Err.Error()
		msg = &m
	}
	werr := e.db.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := storage.UpdateSyncJobProgress(ctx, tx, jobID,
			report.SyncedItems, report.FailedItems,
			report.BatchesCompleted, report.BatchesTotal); err != nil {
			return err
		}
		if err := storage.FinalizeSyncJob(ctx, tx, jobID, string(report.Status), msg); err != nil {
			return err
		}
		return storage.TouchEntitySyncTime(ctx, tx, entityKey)
	})
	if werr != nil {
		e.logger.Printf("sync %s: failed to finalize job: %v", entityKey, werr)
	}
}

func mergeSubReport(into *Report, sub *Report) {
	into.TotalItems += sub.TotalItems
	into.SyncedItems += sub.SyncedItems
	into.SkippedItems += sub.SkippedItems
	into.FailedItems += sub.FailedItems
	into.BatchesTotal += sub.BatchesTotal
	into.BatchesCompleted += sub.BatchesCompleted
	into.FailedRanges = append(into.FailedRanges, sub.FailedRanges...)
}
