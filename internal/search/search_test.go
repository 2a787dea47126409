package search

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adlio/asanadw/internal/asana"
	"github.com/adlio/asanadw/internal/storage"
)

func str(s string) *string { return &s }

func seededDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	err = db.WriteTx(ctx, func(tx *sql.Tx) error {
		project := &asana.Project{
			GID:   "p1",
			Name:  "Launch Readiness",
			Notes: str("Umbrella for the launch plan and readiness checklist"),
		}
		if err := storage.UpsertProject(ctx, tx, project); err != nil {
			return err
		}
		if err := storage.UpsertUserMinimal(ctx, tx, "u1", "Alice", nil); err != nil {
			return err
		}

		task := &asana.Task{
			GID:       "t1",
			Name:      str("Launch Plan"),
			Notes:     str("Draft the launch plan for Q2"),
			CreatedAt: str("2025-03-10T09:00:00.000Z"),
			Assignee:  &asana.User{GID: "u1", Name: "Alice"},
			Memberships: []asana.Membership{
				{Project: asana.Ref{GID: "p1"}},
			},
			CustomFields: []asana.CustomFieldValue{{
				GID:          "cf1",
				Name:         str("Phase"),
				DisplayValue: str("launch prep"),
			}},
		}
		if err := storage.UpsertTask(ctx, tx, task, time.Now()); err != nil {
			return err
		}

		comment := &asana.Story{
			GID:             "c1",
			ResourceSubtype: str("comment_added"),
			Text:            str("reviewed the launch plan"),
			CreatedAt:       str("2025-03-11T10:00:00.000Z"),
			CreatedBy:       &asana.User{GID: "u1", Name: "Alice"},
		}
		return storage.UpsertComment(ctx, tx, "t1", comment)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return db
}

func TestSearch_AcrossTypes(t *testing.T) {
	db := seededDB(t)

	results, err := Search(context.Background(), db, "launch plan", Options{Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results.Total < 3 {
		t.Fatalf("total = %d, want at least 3 (task, comment, project)", results.Total)
	}

	types := map[HitType]bool{}
	for _, h := range results.Hits {
		types[h.Type] = true
	}
	for _, want := range []HitType{HitTask, HitComment, HitProject} {
		if !types[want] {
			t.Errorf("missing hit type %s in %v", want, types)
		}
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	db := seededDB(t)
	results, err := Search(context.Background(), db, "   ", Options{})
	if err != nil {
		t.Fatalf("empty query must not error: %v", err)
	}
	if results.Total != 0 || len(results.Hits) != 0 {
		t.Errorf("empty query returned %d hits", results.Total)
	}
}

func TestSearch_TypeFilter(t *testing.T) {
	db := seededDB(t)

	results, err := Search(context.Background(), db, "launch", Options{
		Types: []HitType{HitProject},
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results.Total == 0 {
		t.Fatal("expected project hits")
	}
	for _, h := range results.Hits {
		if h.Type != HitProject {
			t.Errorf("unexpected hit type %s", h.Type)
		}
	}
}

func TestSearch_AssigneeFilter(t *testing.T) {
	db := seededDB(t)

	results, err := Search(context.Background(), db, "launch", Options{
		Types:       []HitType{HitTask},
		AssigneeGID: "u1",
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results.Total != 1 {
		t.Errorf("assignee-filtered total = %d, want 1", results.Total)
	}

	results, err = Search(context.Background(), db, "launch", Options{
		Types:       []HitType{HitTask},
		AssigneeGID: "nobody",
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results.Total != 0 {
		t.Errorf("wrong-assignee total = %d, want 0", results.Total)
	}
}

func TestSearch_CustomFieldHit(t *testing.T) {
	db := seededDB(t)

	results, err := Search(context.Background(), db, "prep", Options{
		Types: []HitType{HitCustomField},
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results.Total != 1 {
		t.Fatalf("custom field total = %d, want 1", results.Total)
	}
	h := results.Hits[0]
	if h.TaskGID != "t1" {
		t.Errorf("hit task = %s, want t1", h.TaskGID)
	}
}

func TestSearch_SnippetMarksMatches(t *testing.T) {
	db := seededDB(t)

	results, err := Search(context.Background(), db, "crashes OR launch", Options{Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	found := false
	for _, h := range results.Hits {
		if h.Type == HitTask && h.Snippet != "" {
			found = true
			if !strings.Contains(h.Snippet, "**") {
				t.Errorf("snippet %q lacks ** markers", h.Snippet)
			}
		}
	}
	if !found {
		t.Error("no task snippet produced")
	}
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"launch", "launch"},
		{"launch plan", "launch plan"},
		{`already "quoted"`, `"already ""quoted"""`},
		{"c++ review", `"c++ review"`},
		{"foo-bar", `"foo-bar"`},
	}
	for _, tt := range tests {
		if got := normalizeQuery(tt.in); got != tt.want {
			t.Errorf("normalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
