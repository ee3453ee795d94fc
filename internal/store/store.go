// Package store persists collected submissions. Writes happen only from the
// single collection pass; detection reads the combined set afterwards.
package store

import (
	"context"

	"github.com/courseops/subaudit/internal/model"
)

// Store is the append-only persistence capability for a collection run.
// AppendPage must be atomic: either the page's records land and the page is
// marked complete, or neither happens.
type Store interface {
	// AppendPage persists one completed page's records and marks the page
	// complete. The engine deduplicates IDs before flushing; backends may
	// additionally ignore already-stored IDs.
	AppendPage(ctx context.Context, pageIndex int, recs []model.SubmissionRecord) error

	// IsPageComplete reports whether the page was fully flushed by a prior
	// run.
	IsPageComplete(ctx context.Context, pageIndex int) (bool, error)

	// LastCompletedPage returns the highest page index marked complete,
	// or 0 when nothing was collected yet.
	LastCompletedPage(ctx context.Context) (int, error)

	// LoadAll returns the combined record set in page order, then
	// within-page order.
	LoadAll(ctx context.Context) ([]model.SubmissionRecord, error)

	// LogPageOutcome appends a run-log entry for a page.
	LogPageOutcome(ctx context.Context, entry model.PageLogEntry) error

	// RunLog returns all page-log entries in insertion order.
	RunLog(ctx context.Context) ([]model.PageLogEntry, error)

	Migrate(ctx context.Context) error
	Close() error
}

// SkippedPages extracts the pages whose most recent log entry marks them
// skipped, for targeted re-collection.
func SkippedPages(entries []model.PageLogEntry) []int {
	last := make(map[int]model.PageOutcome)
	var order []int
	for _, e := range entries {
		if _, seen := last[e.PageIndex]; !seen {
			order = append(order, e.PageIndex)
		}
		last[e.PageIndex] = e.Outcome
	}

	var skipped []int
	for _, page := range order {
		if last[page] == model.PageOutcomeSkipped {
			skipped = append(skipped, page)
		}
	}
	return skipped
}
