// Package warehouse is the facade tying storage, the API client, the
// sync engine, and the LLM provider together. The CLI talks to this
// package only.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/adlio/asanadw/internal/asana"
	"github.com/adlio/asanadw/internal/asanaurl"
	"github.com/adlio/asanadw/internal/storage"
	syncengine "github.com/adlio/asanadw/internal/sync"
)

// Warehouse owns the open store and the upstream client.
type Warehouse struct {
	db     *storage.DB
	client asana.Client
	engine *syncengine.Engine
	logger *log.Logger
}

// New wires a warehouse over an open store and client. A nil logger
// defaults to the standard logger.
func New(db *storage.DB, client asana.Client, logger *log.Logger) *Warehouse {
	if logger == nil {
		logger = log.Default()
	}
	return &Warehouse{
		db:     db,
		client: client,
		engine: syncengine.NewEngine(db, client, logger),
		logger: logger,
	}
}

// DB exposes the store for the read-only subsystems (query, search,
// metrics, summaries).
func (w *Warehouse) DB() *storage.DB {
	return w.db
}

// WorkspaceGID returns the configured workspace, auto-detecting it on
// first use: a single-workspace token is stored silently, multiple
// workspaces require explicit configuration.
func (w *Warehouse) WorkspaceGID(ctx context.Context) (string, error) {
	if gid, ok, err := storage.GetConfig(ctx, w.db.Reader(), "workspace_gid"); err != nil {
		return "", err
	} else if ok {
		return gid, nil
	}

	workspaces, err := w.client.ListWorkspaces(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list workspaces: %w", err)
	}
	switch len(workspaces) {
	case 0:
		return "", fmt.Errorf("%w: no workspaces found for this Asana token", ErrConfig)
	case 1:
		gid := workspaces[0].GID
		err := w.db.WriteTx(ctx, func(tx *sql.Tx) error {
			return storage.SetConfig(ctx, tx, "workspace_gid", gid)
		})
		if err != nil {
			return "", err
		}
		return gid, nil
	default:
		var names []string
		for _, ws := range workspaces {
			names = append(names, fmt.Sprintf("  %s (%s)", ws.Name, ws.GID))
		}
		return "", fmt.Errorf("%w: multiple workspaces found. Run: asanadw config set workspace_gid <GID>\n%s",
			ErrConfig, strings.Join(names, "\n"))
	}
}

// EnsureUserIdentity caches the current user's identity in app_config
// and dim_users, calling the API only on first use.
func (w *Warehouse) EnsureUserIdentity(ctx context.Context) (string, error) {
	if gid, ok, err := storage.GetConfig(ctx, w.db.Reader(), "user_gid"); err != nil {
		return "", err
	} else if ok {
		return gid, nil
	}

	me, err := w.client.Me(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch current user: %w", err)
	}
	err = w.db.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := storage.SetConfig(ctx, tx, "user_gid", me.GID); err != nil {
			return err
		}
		if err := storage.SetConfig(ctx, tx, "user_name", me.Name); err != nil {
			return err
		}
		if me.Email != nil {
			if err := storage.SetConfig(ctx, tx, "user_email", *me.Email); err != nil {
				return err
			}
		}
		return storage.UpsertUser(ctx, tx, me)
	})
	if err != nil {
		return "", err
	}
	return me.GID, nil
}

// ── Sync entry points ──────────────────────────────────────────────

// SyncProject resolves the identifier (GID, URL, or name) and syncs the
// project.
func (w *Warehouse) SyncProject(ctx context.Context, identifier string, opts syncengine.Options) (*syncengine.Report, error) {
	gid, err := w.resolveIdentifier(ctx, identifier, storage.ResolveProjectIdentifier)
	if err != nil {
		return nil, err
	}
	return w.engine.SyncProject(ctx, gid, opts)
}

// SyncUser resolves the identifier (GID, URL, or email) and syncs the
// user's assigned tasks.
func (w *Warehouse) SyncUser(ctx context.Context, identifier string, opts syncengine.Options) (*syncengine.Report, error) {
	workspaceGID, err := w.WorkspaceGID(ctx)
	if err != nil {
		return nil, err
	}
	gid, err := w.resolveIdentifier(ctx, identifier, storage.ResolveUserIdentifier)
	if err != nil {
		return nil, err
	}
	return w.engine.SyncUser(ctx, workspaceGID, gid, opts)
}

// SyncTeam resolves the identifier and syncs the team.
func (w *Warehouse) SyncTeam(ctx context.Context, identifier string, opts syncengine.Options) (*syncengine.Report, error) {
	workspaceGID, err := w.WorkspaceGID(ctx)
	if err != nil {
		return nil, err
	}
	gid, err := w.resolveIdentifier(ctx, identifier, storage.ResolveTeamIdentifier)
	if err != nil {
		return nil, err
	}
	return w.engine.SyncTeam(ctx, workspaceGID, gid, opts)
}

// SyncPortfolio resolves the identifier and syncs the portfolio tree.
func (w *Warehouse) SyncPortfolio(ctx context.Context, identifier string, opts syncengine.Options) (*syncengine.Report, error) {
	gid, err := w.resolveIdentifier(ctx, identifier, storage.ResolvePortfolioIdentifier)
	if err != nil {
		return nil, err
	}
	return w.engine.SyncPortfolio(ctx, gid, opts)
}

// SyncAll syncs every monitored entity sequentially. Per-entity failures
// produce failed reports, never abort the pass.
func (w *Warehouse) SyncAll(ctx context.Context, opts syncengine.Options) ([]*syncengine.Report, error) {
	if _, err := w.EnsureUserIdentity(ctx); err != nil {
		w.logger.Printf("could not auto-detect user identity: %v", err)
	}

	entities, err := storage.ListMonitoredEntities(ctx, w.db.Reader())
	if err != nil {
		return nil, err
	}

	var reports []*syncengine.Report
	for _, e := range entities {
		var (
			report *syncengine.Report
			serr   error
		)
		switch e.EntityType {
		case "project":
			report, serr = w.engine.SyncProject(ctx, e.EntityGID, opts)
		case "user":
			var ws string
			ws, serr = w.WorkspaceGID(ctx)
			if serr == nil {
				report, serr = w.engine.SyncUser(ctx, ws, e.EntityGID, opts)
			}
		case "team":
			var ws string
			ws, serr = w.WorkspaceGID(ctx)
			if serr == nil {
				report, serr = w.engine.SyncTeam(ctx, ws, e.EntityGID, opts)
			}
		case "portfolio":
			report, serr = w.engine.SyncPortfolio(ctx, e.EntityGID, opts)
		default:
			w.logger.Printf("unknown entity type: %s", e.EntityType)
			continue
		}
		if serr != nil {
			w.logger.Printf("failed to sync %s: %v", e.EntityKey, serr)
			reports = append(reports, &syncengine.Report{
				EntityKey: e.EntityKey,
				Status:    syncengine.StatusFailed,
				Err:       serr,
			})
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// resolveIdentifier turns a GID, URL, email, or name into a GID using
// the URL parser first and the store second.
func (w *Warehouse) resolveIdentifier(
	ctx context.Context,
	identifier string,
	resolve func(context.Context, storage.DBTX, string) (string, error),
) (string, error) {
	raw, err := asanaurl.ResolveGID(identifier)
	if err != nil {
		return "", err
	}
	return resolve(ctx, w.db.Reader(), raw)
}

// ── Monitor commands ───────────────────────────────────────────────

// MonitorAdd registers an entity for recurring sync, resolving the
// identifier and fetching a display name where the API offers one.
func (w *Warehouse) MonitorAdd(ctx context.Context, entityType, identifier string) (string, error) {
	gid, err := asanaurl.ResolveGID(identifier)
	if err != nil {
		return "", err
	}
	entityKey := entityType + ":" + gid

	var displayName *string
	switch entityType {
	case "project":
		if p, err := w.client.GetProject(ctx, gid); err == nil {
			displayName = &p.Name
		}
	case "portfolio":
		if p, err := w.client.GetPortfolio(ctx, gid); err == nil {
			displayName = &p.Name
		}
	case "team":
		if t, err := w.client.GetTeam(ctx, gid); err == nil {
			displayName = &t.Name
		}
	case "user":
		if u, err := w.client.GetUser(ctx, gid); err == nil {
			displayName = &u.Name
		}
	default:
		return "", fmt.Errorf("%w: unknown entity type %q", ErrConfig, entityType)
	}

	err = w.db.WriteTx(ctx, func(tx *sql.Tx) error {
		return storage.AddMonitoredEntity(ctx, tx, entityKey, entityType, gid, displayName)
	})
	if err != nil {
		return "", err
	}
	return entityKey, nil
}

// MonitorRemove unregisters an entity.
func (w *Warehouse) MonitorRemove(ctx context.Context, entityKey string) (bool, error) {
	var removed bool
	err := w.db.WriteTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = storage.RemoveMonitoredEntity(ctx, tx, entityKey)
		return err
	})
	return removed, err
}

// MonitorList returns the registered entities.
func (w *Warehouse) MonitorList(ctx context.Context) ([]storage.MonitoredEntity, error) {
	return storage.ListMonitoredEntities(ctx, w.db.Reader())
}

// MonitorAddFavorites registers the user's favorited projects and
// portfolios. Returns the entity keys added.
func (w *Warehouse) MonitorAddFavorites(ctx context.Context) ([]string, error) {
	workspaceGID, err := w.WorkspaceGID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := w.EnsureUserIdentity(ctx); err != nil {
		return nil, err
	}

	favorites, err := w.client.ListFavorites(ctx, workspaceGID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}

	var added []string
	for _, fav := range favorites {
		if fav.ResourceType != "project" && fav.ResourceType != "portfolio" {
			continue
		}
		entityKey := fav.ResourceType + ":" + fav.GID
		err := w.db.WriteTx(ctx, func(tx *sql.Tx) error {
			return storage.AddMonitoredEntity(ctx, tx, entityKey, fav.ResourceType, fav.GID, fav.Name)
		})
		if err != nil {
			return nil, err
		}
		added = append(added, entityKey)
	}
	return added, nil
}

// ── Config commands ────────────────────────────────────────────────

// ConfigGet reads one durable config value.
func (w *Warehouse) ConfigGet(ctx context.Context, key string) (string, bool, error) {
	return storage.GetConfig(ctx, w.db.Reader(), key)
}

// ConfigSet writes one durable config value.
func (w *Warehouse) ConfigSet(ctx context.Context, key, value string) error {
	return w.db.WriteTx(ctx, func(tx *sql.Tx) error {
		return storage.SetConfig(ctx, tx, key, value)
	})
}

// ConfigList returns all durable config values.
func (w *Warehouse) ConfigList(ctx context.Context) ([][2]string, error) {
	return storage.ListConfig(ctx, w.db.Reader())
}
