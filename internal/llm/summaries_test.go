package llm

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adlio/asanadw/internal/asana"
	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/storage"
)

// fakeProvider returns canned replies and counts invocations.
type fakeProvider struct {
	reply string
	calls int
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.reply, nil
}

func str(s string) *string { return &s }

func seededDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	err = db.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := storage.UpsertUserMinimal(ctx, tx, "u1", "Alice", nil); err != nil {
			return err
		}
		task := &asana.Task{
			GID:       "t1",
			Name:      str("Ship the importer"),
			Notes:     str("Move the CSV importer to the new pipeline"),
			CreatedAt: str("2025-03-10T09:00:00.000Z"),
			Assignee:  &asana.User{GID: "u1", Name: "Alice"},
		}
		if err := storage.UpsertTask(ctx, tx, task, time.Now()); err != nil {
			return err
		}
		comment := &asana.Story{
			GID:             "c1",
			ResourceSubtype: str("comment_added"),
			Text:            str("importer is green in staging"),
			CreatedAt:       str("2025-03-12T10:00:00.000Z"),
			CreatedBy:       &asana.User{GID: "u1", Name: "Alice"},
		}
		return storage.UpsertComment(ctx, tx, "t1", comment)
	})
	require.NoError(t, err)
	return db
}

const taskReply = `{
  "headline": "Importer shipped",
  "what_happened": "The CSV importer moved to the new pipeline.",
  "why_it_matters": "Unblocks downstream metrics.",
  "complexity_signal": "medium",
  "notability_score": 7,
  "change_types": ["infrastructure"]
}`

func TestSummarizeTask_GeneratesAndCaches(t *testing.T) {
	db := seededDB(t)
	provider := &fakeProvider{reply: taskReply}
	s := NewSummarizer(db, provider)
	ctx := context.Background()

	summary, err := s.SummarizeTask(ctx, "t1", false)
	require.NoError(t, err)
	assert.Equal(t, "Importer shipped", summary.Headline)
	assert.Equal(t, 7, summary.NotabilityScore)
	assert.Equal(t, []string{"infrastructure"}, summary.ChangeTypes)
	assert.Equal(t, 1, provider.calls)

	// Second call serves the cache without touching the provider.
	again, err := s.SummarizeTask(ctx, "t1", false)
	require.NoError(t, err)
	assert.Equal(t, summary.Headline, again.Headline)
	assert.Equal(t, 1, provider.calls)

	// Force bypasses the cache.
	_, err = s.SummarizeTask(ctx, "t1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestSummarizeTask_StripsCodeFences(t *testing.T) {
	db := seededDB(t)
	provider := &fakeProvider{reply: "```json\n" + taskReply + "\n```"}
	s := NewSummarizer(db, provider)

	summary, err := s.SummarizeTask(context.Background(), "t1", false)
	require.NoError(t, err)
	assert.Equal(t, "Importer shipped", summary.Headline)
}

func TestSummarizeTask_NotFound(t *testing.T) {
	db := seededDB(t)
	s := NewSummarizer(db, &fakeProvider{reply: taskReply})

	_, err := s.SummarizeTask(context.Background(), "missing", false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSummarizeTask_BadReply(t *testing.T) {
	db := seededDB(t)
	s := NewSummarizer(db, &fakeProvider{reply: "sorry, I cannot help with that"})

	_, err := s.SummarizeTask(context.Background(), "t1", false)
	require.Error(t, err)

	// Nothing was written on failure.
	var n int
	require.NoError(t, db.Reader().QueryRow(
		"SELECT COUNT(*) FROM fact_task_summaries").Scan(&n))
	assert.Zero(t, n)
}

const periodReply = `{
  "headline": "Steady March",
  "narrative": "Alice shipped the importer and kept review latency low.",
  "highlights": ["importer shipped", "one comment thread"]
}`

func TestSummarizePeriod_CachePerEntityAndPeriod(t *testing.T) {
	db := seededDB(t)
	provider := &fakeProvider{reply: periodReply}
	s := NewSummarizer(db, provider)
	ctx := context.Background()
	march := period.Period{Type: period.Month, Year: 2025, Num: 3}

	summary, err := s.SummarizePeriod(ctx, EntityUser, "u1", march, false)
	require.NoError(t, err)
	assert.Equal(t, "Steady March", summary.Headline)
	assert.Len(t, summary.Highlights, 2)
	assert.Equal(t, 1, provider.calls)

	_, err = s.SummarizePeriod(ctx, EntityUser, "u1", march, false)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls, "same entity+period must hit the cache")

	// A different period regenerates.
	feb := period.Period{Type: period.Month, Year: 2025, Num: 2}
	_, err = s.SummarizePeriod(ctx, EntityUser, "u1", feb, false)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestSummarizePeriod_PromptVersionInvalidatesCache(t *testing.T) {
	db := seededDB(t)
	provider := &fakeProvider{reply: periodReply}
	s := NewSummarizer(db, provider)
	ctx := context.Background()
	march := period.Period{Type: period.Month, Year: 2025, Num: 3}

	_, err := s.SummarizePeriod(ctx, EntityUser, "u1", march, false)
	require.NoError(t, err)

	// Age the stored row to an older prompt version.
	err = db.WriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE fact_user_period_summaries SET prompt_version = 'period-v0'")
		return err
	})
	require.NoError(t, err)

	_, err = s.SummarizePeriod(ctx, EntityUser, "u1", march, false)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls, "older prompt version must regenerate")
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"k": "v"}`, stripCodeFences("```json\n{\"k\": \"v\"}\n```"))
	assert.Equal(t, `{"k": "v"}`, stripCodeFences("```\n{\"k\": \"v\"}\n```"))
	assert.Equal(t, `{"k": "v"}`, stripCodeFences(`{"k": "v"}`))
	assert.Equal(t, "{}", stripCodeFences("  ```json\n{}\n```  "))
}
