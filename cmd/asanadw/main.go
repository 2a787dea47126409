package main

import (
	"errors"
	"fmt"
	"os"

	syncengine "github.com/adlio/asanadw/internal/sync"
	"github.com/adlio/asanadw/internal/warehouse"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error kinds to distinct exit codes for scripting:
// partial sync = 2, failed sync = 3, misuse = 64.
func exitCode(err error) int {
	var partial *partialSyncError
	if errors.As(err, &partial) {
		return 2
	}
	var failed *failedSyncError
	if errors.As(err, &failed) {
		return 3
	}
	switch warehouse.Classify(err) {
	case warehouse.KindPeriodParse, warehouse.KindURLParse,
		warehouse.KindInvalidIdentifier, warehouse.KindConfig:
		return 64
	case warehouse.KindNotFound:
		return 4
	case warehouse.KindDatabase:
		return 5
	default:
		return 1
	}
}

// partialSyncError and failedSyncError carry sync outcomes up to main
// for exit-code mapping.
type partialSyncError struct{ report *syncengine.Report }

func (e *partialSyncError) Error() string {
	return fmt.Sprintf("sync %s finished partially: %d of %d batches failed",
		e.report.EntityKey, len(e.report.FailedRanges), e.report.BatchesTotal)
}

type failedSyncError struct{ report *syncengine.Report }

func (e *failedSyncError) Error() string {
	if e.report.Err != nil {
		return fmt.Sprintf("sync %s failed: %v", e.report.EntityKey, e.report.Err)
	}
	return fmt.Sprintf("sync %s failed", e.report.EntityKey)
}

// reportToErr converts a non-completed report into the matching error.
func reportToErr(report *syncengine.Report) error {
	switch report.Status {
	case syncengine.StatusPartial:
		return &partialSyncError{report}
	case syncengine.StatusFailed:
		return &failedSyncError{report}
	}
	return nil
}
