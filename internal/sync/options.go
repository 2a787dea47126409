// Package sync implements the incremental pull from the upstream API:
// date-windowed gap detection, month-aligned transactional batches, the
// events-delta incremental path, and a rate-limit governor wrapping every
// outbound call. A single failed batch never aborts a sync; its range is
// recorded and the remaining batches continue.
package sync

import (
	"time"
)

const (
	// DefaultDays is the lookback window when neither --days nor --since
	// is given.
	DefaultDays = 90
	// DefaultBatchSizeDays is the nominal batch length. Batch splitting
	// does not consult it: batches follow calendar month boundaries and
	// can span up to 31 days.
	DefaultBatchSizeDays = 30
	// deltaChangeLimit is the most changed tasks the engine will fetch
	// individually; beyond it a bulk modified-since fetch wins on
	// round-trips.
	deltaChangeLimit = 50
	// tokenMaxAge is how old a stored events-delta token may be before
	// the engine distrusts it and falls back to a full pass.
	tokenMaxAge = 24 * time.Hour
)

// Options controls one sync invocation.
type Options struct {
	// Days is the lookback window; ignored when Since is set.
	Days int
	// Since is the first day of the sync window (inclusive).
	Since time.Time
	// BatchSizeDays is not read by the engine; batches always follow
	// calendar month boundaries.
	BatchSizeDays int
	// Full forces the bulk path for every batch and discards any stored
	// events-delta token; a fresh token is recorded after the pass.
	Full bool
	// Progress, when set, is invoked synchronously at each batch commit.
	Progress ProgressFunc
}

// SinceDate resolves the effective window start for a given today.
func (o Options) SinceDate(today time.Time) time.Time {
	if !o.Since.IsZero() {
		return o.Since
	}
	days := o.Days
	if days <= 0 {
		days = DefaultDays
	}
	return today.AddDate(0, 0, -days)
}

// ProgressEvent describes one committed batch.
type ProgressEvent struct {
	EntityKey  string
	BatchIndex int
	BatchTotal int
	Start      time.Time
	End        time.Time
	ItemsSoFar int
}

// ProgressFunc receives progress events. Implementations must not call
// back into the store's write path; the event fires after the batch
// transaction commits.
type ProgressFunc func(ProgressEvent)

// Status is the terminal state of a sync.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Report summarizes a finished sync.
type Report struct {
	EntityKey        string
	Status           Status
	TotalItems       int
	SyncedItems      int
	SkippedItems     int
	FailedItems      int
	BatchesTotal     int
	BatchesCompleted int
	FailedRanges     []DateRange
	Duration         time.Duration
	Err              error
}

// statusFromCounts derives the terminal status: completed when nothing
// failed, failed when nothing succeeded, partial otherwise.
func statusFromCounts(batchesCompleted, batchesFailed int) Status {
	switch {
	case batchesFailed == 0:
		return StatusCompleted
	case batchesCompleted == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
