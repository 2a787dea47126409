package sync

import (
	"sort"
	"time"

	"github.com/adlio/asanadw/internal/storage"
)

// DateRange is an inclusive [Start, End] span of civil dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// FindGaps returns the month-aligned sub-ranges of
// [desiredStart, desiredEnd] not covered by the given synced ranges,
// ordered oldest to newest. Touching ranges (one day apart) merge; an
// already-covered request yields the empty list.
func FindGaps(desiredStart, desiredEnd time.Time, synced []DateRange) []DateRange {
	if desiredStart.After(desiredEnd) {
		return nil
	}

	merged := mergeRanges(synced)

	var gaps []DateRange
	cursor := desiredStart
	for _, r := range merged {
		if r.Start.After(cursor) {
			gapEnd := r.Start.AddDate(0, 0, -1)
			if !gapEnd.Before(cursor) && !cursor.After(desiredEnd) {
				gaps = append(gaps, DateRange{Start: cursor, End: minDate(gapEnd, desiredEnd)})
			}
		}
		if next := r.End.AddDate(0, 0, 1); next.After(cursor) {
			cursor = next
		}
	}
	if !cursor.After(desiredEnd) {
		gaps = append(gaps, DateRange{Start: cursor, End: desiredEnd})
	}

	var batches []DateRange
	for _, g := range gaps {
		batches = append(batches, splitIntoMonths(g.Start, g.End)...)
	}
	return batches
}

// mergeRanges merges overlapping and adjacent ranges, sorted by start.
func mergeRanges(ranges []DateRange) []DateRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]DateRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []DateRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !r.Start.After(last.End.AddDate(0, 0, 1)) {
			if r.End.After(last.End) {
				last.End = r.End
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// splitIntoMonths splits a range at calendar month boundaries so every
// batch lies within a single month.
func splitIntoMonths(start, end time.Time) []DateRange {
	var batches []DateRange
	cursor := start
	for !cursor.After(end) {
		monthEnd := storage.LastDayOfMonth(cursor.Year(), cursor.Month())
		batchEnd := minDate(monthEnd, end)
		batches = append(batches, DateRange{Start: cursor, End: batchEnd})
		cursor = batchEnd.AddDate(0, 0, 1)
	}
	return batches
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
