package query

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adlio/asanadw/internal/asana"
	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/storage"
)

func str(s string) *string { return &s }

func TestBuildSQL_Default(t *testing.T) {
	sqlStr, params := New().buildSQL()
	if !strings.Contains(sqlStr, "FROM fact_tasks t") {
		t.Error("missing base table")
	}
	if !strings.Contains(sqlStr, "GROUP BY t.task_gid") {
		t.Error("missing dedupe group by")
	}
	if !strings.Contains(sqlStr, "ORDER BY t.modified_at ASC") {
		t.Error("missing default order")
	}
	// Only the implicit default limit binds.
	if len(params) != 1 || params[0] != DefaultLimit {
		t.Errorf("params = %v, want [100]", params)
	}
}

func TestBuildSQL_Filters(t *testing.T) {
	b := New().
		Project("123").
		Completed(true).
		Limit(10).
		OrderBy("created_at").
		Descending()
	sqlStr, params := b.buildSQL()

	if !strings.Contains(sqlStr, "btp.project_gid = ?") {
		t.Error("missing project filter")
	}
	if !strings.Contains(sqlStr, "t.is_completed = ?") {
		t.Error("missing completed filter")
	}
	if !strings.Contains(sqlStr, "ORDER BY t.created_at DESC") {
		t.Error("missing order clause")
	}
	if len(params) != 3 {
		t.Errorf("params = %v, want 3", params)
	}
}

func TestBuildSQL_UnknownOrderFallsBack(t *testing.T) {
	sqlStr, _ := New().OrderBy("name; DROP TABLE fact_tasks").buildSQL()
	if !strings.Contains(sqlStr, "ORDER BY t.modified_at ASC") {
		t.Error("unknown order column must fall back to modified_at")
	}
}

func TestBuildSQL_CustomField(t *testing.T) {
	sqlStr, params := New().CustomField("Priority", "High").buildSQL()
	if !strings.Contains(sqlStr, "dim_custom_fields") {
		t.Error("missing custom field join")
	}
	if len(params) != 3 { // name, value, limit
		t.Errorf("params = %v", params)
	}
}

func seededDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	err = db.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := storage.UpsertProject(ctx, tx, &asana.Project{GID: "p1", Name: "Alpha"}); err != nil {
			return err
		}
		if err := storage.UpsertUserMinimal(ctx, tx, "u1", "Alice", str("alice@example.com")); err != nil {
			return err
		}

		open := &asana.Task{
			GID:       "t1",
			Name:      str("Open task"),
			CreatedAt: str("2025-03-10T09:00:00.000Z"),
			Assignee:  &asana.User{GID: "u1", Name: "Alice"},
			Memberships: []asana.Membership{
				{Project: asana.Ref{GID: "p1"}},
			},
			CustomFields: []asana.CustomFieldValue{{
				GID:          "cf1",
				Name:         str("Priority"),
				DisplayValue: str("High"),
			}},
		}
		if err := storage.UpsertTask(ctx, tx, open, now); err != nil {
			return err
		}

		done := &asana.Task{
			GID:         "t2",
			Name:        str("Done task"),
			CreatedAt:   str("2025-02-01T09:00:00.000Z"),
			Completed:   true,
			CompletedAt: str("2025-02-10T09:00:00.000Z"),
			Memberships: []asana.Membership{
				{Project: asana.Ref{GID: "p1"}},
			},
		}
		if err := storage.UpsertTask(ctx, tx, done, now); err != nil {
			return err
		}

		overdue := &asana.Task{
			GID:       "t3",
			Name:      str("Overdue task"),
			CreatedAt: str("2025-01-05T09:00:00.000Z"),
			DueOn:     str("2025-02-01"),
			Memberships: []asana.Membership{
				{Project: asana.Ref{GID: "p1"}},
			},
		}
		return storage.UpsertTask(ctx, tx, overdue, now)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return db
}

func TestTasks_ProjectFilter(t *testing.T) {
	db := seededDB(t)
	rows, err := New().Project("p1").Tasks(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	for _, r := range rows {
		if r.ProjectName == nil || *r.ProjectName != "Alpha" {
			t.Errorf("project name = %v", r.ProjectName)
		}
	}
}

func TestTasks_CompletedAndOverdue(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	rows, err := New().Completed(true).Tasks(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].TaskGID != "t2" {
		t.Errorf("completed rows = %v", rows)
	}

	rows, err = New().Overdue(true).Tasks(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].TaskGID != "t3" {
		t.Errorf("overdue rows = %v", rows)
	}
}

func TestTasks_PeriodFilter(t *testing.T) {
	db := seededDB(t)
	march := period.Period{Type: period.Month, Year: 2025, Num: 3}
	rows, err := New().Period(march).Tasks(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].TaskGID != "t1" {
		t.Errorf("period rows = %v", rows)
	}
}

func TestTasks_CustomFieldFilter(t *testing.T) {
	db := seededDB(t)
	rows, err := New().CustomField("Priority", "High").Tasks(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].TaskGID != "t1" {
		t.Errorf("custom field rows = %v", rows)
	}
}

func TestCount(t *testing.T) {
	db := seededDB(t)
	n, err := New().Project("p1").Count(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestToCSV(t *testing.T) {
	db := seededDB(t)
	out, err := New().Completed(true).ToCSV(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "task_gid,name") {
		t.Errorf("header = %s", lines[0])
	}
	if !strings.Contains(lines[1], "Done task") {
		t.Errorf("row = %s", lines[1])
	}
}

func TestToJSON_EmptyIsArray(t *testing.T) {
	db := seededDB(t)
	out, err := New().Assignee("nobody").ToJSON(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("empty result JSON = %q, want []", out)
	}
}

func TestCSVEscape(t *testing.T) {
	if got := csvEscape("hello"); got != "hello" {
		t.Errorf("csvEscape plain = %q", got)
	}
	if got := csvEscape("hello,world"); got != `"hello,world"` {
		t.Errorf("csvEscape comma = %q", got)
	}
	if got := csvEscape(`say "hi"`); got != `"say ""hi"""` {
		t.Errorf("csvEscape quotes = %q", got)
	}
}
