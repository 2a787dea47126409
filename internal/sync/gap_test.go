package sync

import (
	"testing"
	"time"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestFindGaps_NoSyncedRanges(t *testing.T) {
	gaps := FindGaps(d(2025, 1, 1), d(2025, 3, 31), nil)
	if len(gaps) != 3 {
		t.Fatalf("expected 3 month batches, got %d: %v", len(gaps), gaps)
	}
	want := []DateRange{
		{d(2025, 1, 1), d(2025, 1, 31)},
		{d(2025, 2, 1), d(2025, 2, 28)},
		{d(2025, 3, 1), d(2025, 3, 31)},
	}
	for i, w := range want {
		if !gaps[i].Start.Equal(w.Start) || !gaps[i].End.Equal(w.End) {
			t.Errorf("batch %d = %v..%v, want %v..%v", i, gaps[i].Start, gaps[i].End, w.Start, w.End)
		}
	}
}

func TestFindGaps_FullyCovered(t *testing.T) {
	synced := []DateRange{{d(2025, 1, 1), d(2025, 3, 31)}}
	gaps := FindGaps(d(2025, 1, 1), d(2025, 3, 31), synced)
	if len(gaps) != 0 {
		t.Fatalf("expected no gaps, got %v", gaps)
	}
}

func TestFindGaps_GapInMiddle(t *testing.T) {
	synced := []DateRange{
		{d(2025, 1, 1), d(2025, 1, 31)},
		{d(2025, 3, 1), d(2025, 3, 31)},
	}
	gaps := FindGaps(d(2025, 1, 1), d(2025, 3, 31), synced)
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %v", gaps)
	}
	if !gaps[0].Start.Equal(d(2025, 2, 1)) || !gaps[0].End.Equal(d(2025, 2, 28)) {
		t.Errorf("gap = %v..%v, want February", gaps[0].Start, gaps[0].End)
	}
}

func TestFindGaps_GapAtEnd(t *testing.T) {
	synced := []DateRange{{d(2025, 1, 1), d(2025, 2, 28)}}
	gaps := FindGaps(d(2025, 1, 1), d(2025, 3, 31), synced)
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %v", gaps)
	}
	if !gaps[0].Start.Equal(d(2025, 3, 1)) || !gaps[0].End.Equal(d(2025, 3, 31)) {
		t.Errorf("gap = %v..%v, want March", gaps[0].Start, gaps[0].End)
	}
}

func TestFindGaps_OverlappingRangesMerge(t *testing.T) {
	synced := []DateRange{
		{d(2025, 1, 1), d(2025, 1, 20)},
		{d(2025, 1, 15), d(2025, 2, 15)},
	}
	gaps := FindGaps(d(2025, 1, 1), d(2025, 3, 31), synced)
	if len(gaps) == 0 {
		t.Fatal("expected gaps after Feb 15")
	}
	if !gaps[0].Start.Equal(d(2025, 2, 16)) {
		t.Errorf("first gap starts %v, want 2025-02-16", gaps[0].Start)
	}
}

func TestFindGaps_AdjacentRangesMerge(t *testing.T) {
	// Jan 1-31 and Feb 1-28 touch: no gap between them.
	synced := []DateRange{
		{d(2025, 1, 1), d(2025, 1, 31)},
		{d(2025, 2, 1), d(2025, 2, 28)},
	}
	gaps := FindGaps(d(2025, 1, 1), d(2025, 2, 28), synced)
	if len(gaps) != 0 {
		t.Fatalf("expected no gaps for adjacent covered ranges, got %v", gaps)
	}
}

func TestFindGaps_InvertedRequest(t *testing.T) {
	if gaps := FindGaps(d(2025, 3, 1), d(2025, 1, 1), nil); len(gaps) != 0 {
		t.Fatalf("inverted request should be empty, got %v", gaps)
	}
}

func TestSplitIntoMonths(t *testing.T) {
	batches := splitIntoMonths(d(2025, 1, 15), d(2025, 3, 10))
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %v", batches)
	}
	want := []DateRange{
		{d(2025, 1, 15), d(2025, 1, 31)},
		{d(2025, 2, 1), d(2025, 2, 28)},
		{d(2025, 3, 1), d(2025, 3, 10)},
	}
	for i, w := range want {
		if !batches[i].Start.Equal(w.Start) || !batches[i].End.Equal(w.End) {
			t.Errorf("batch %d = %v..%v, want %v..%v", i, batches[i].Start, batches[i].End, w.Start, w.End)
		}
	}
}

func TestFindGaps_OrderedOldestFirst(t *testing.T) {
	synced := []DateRange{{d(2025, 2, 1), d(2025, 2, 28)}}
	gaps := FindGaps(d(2025, 1, 1), d(2025, 4, 30), synced)
	for i := 1; i < len(gaps); i++ {
		if !gaps[i].Start.After(gaps[i-1].End) {
			t.Fatalf("gaps out of order: %v", gaps)
		}
	}
}
