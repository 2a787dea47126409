package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func TestExtendCalendar_Backward(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	old := time.Date(2019, 6, 15, 0, 0, 0, 0, time.UTC)
	err := db.WriteTx(ctx, func(tx *sql.Tx) error {
		return ExtendCalendar(tx, old)
	})
	if err != nil {
		t.Fatalf("ExtendCalendar failed: %v", err)
	}

	var n int
	if err := db.Reader().QueryRow(
		"SELECT COUNT(*) FROM dim_date WHERE date_key = '2019-06-15'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Error("backward extension missing requested date")
	}

	// The whole intervening span is covered, not just the one date.
	if err := db.Reader().QueryRow(
		"SELECT COUNT(*) FROM dim_date WHERE date_key = '2020-07-04'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Error("gap left between extension and existing range")
	}

	// Periods follow the calendar.
	if err := db.Reader().QueryRow(
		"SELECT COUNT(*) FROM dim_period WHERE period_key = '2019-Q2'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Error("dim_period not extended alongside dim_date")
	}
}

func TestExtendCalendar_Forward(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	future := time.Now().UTC().AddDate(2, 0, 0)
	err := db.WriteTx(ctx, func(tx *sql.Tx) error {
		return ExtendCalendar(tx, future)
	})
	if err != nil {
		t.Fatalf("ExtendCalendar failed: %v", err)
	}

	var n int
	if err := db.Reader().QueryRow(
		"SELECT COUNT(*) FROM dim_date WHERE date_key = ?", DateKey(future)).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Error("forward extension missing requested date")
	}
}

func TestExtendCalendar_NoopInsideRange(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	var before int
	if err := db.Reader().QueryRow("SELECT COUNT(*) FROM dim_date").Scan(&before); err != nil {
		t.Fatal(err)
	}

	err := db.WriteTx(ctx, func(tx *sql.Tx) error {
		return ExtendCalendar(tx, time.Now().UTC().AddDate(0, -1, 0))
	})
	if err != nil {
		t.Fatal(err)
	}

	var after int
	if err := db.Reader().QueryRow("SELECT COUNT(*) FROM dim_date").Scan(&after); err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Errorf("row count changed %d -> %d for an in-range date", before, after)
	}
}

func TestQuarterHelpers(t *testing.T) {
	if q := QuarterOf(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)); q != 1 {
		t.Errorf("Q(2025-03-31) = %d", q)
	}
	if q := QuarterOf(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)); q != 2 {
		t.Errorf("Q(2025-04-01) = %d", q)
	}
	if q := QuarterOf(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)); q != 4 {
		t.Errorf("Q(2025-12-31) = %d", q)
	}

	if got := LastDayOfMonth(2024, time.February); got.Day() != 29 {
		t.Errorf("leap February end = %v", got)
	}
	if got := LastDayOfMonth(2025, time.February); got.Day() != 28 {
		t.Errorf("February end = %v", got)
	}
	if got := LastDayOfMonth(2025, time.December); got.Day() != 31 {
		t.Errorf("December end = %v", got)
	}
}

func TestDimDate_PriorQuarterClamps(t *testing.T) {
	db := testDB(t)

	// 2025-09-30 is day offset 91 of Q3; Q2 only reaches offset 90, so
	// the prior key clamps to the quarter end.
	var prior string
	err := db.Reader().QueryRow(
		"SELECT prior_quarter_date_key FROM dim_date WHERE date_key = '2025-09-30'").Scan(&prior)
	if err != nil {
		t.Fatal(err)
	}
	if prior != "2025-06-30" {
		t.Errorf("prior_quarter_date_key = %q, want 2025-06-30", prior)
	}
}
