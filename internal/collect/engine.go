// Package collect drives the page-by-page collection of submission records:
// pagination, batching, retry with backoff, inter-page pacing, incremental
// persistence, and resumption from prior progress.
package collect

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/courseops/subaudit/internal/fetcher"
	"github.com/courseops/subaudit/internal/model"
	"github.com/courseops/subaudit/internal/resilience"
	"github.com/courseops/subaudit/internal/store"
)

// Options configures one collection run.
type Options struct {
	// MaxPages is the upper bound on pages to visit. Must be positive.
	MaxPages int

	// BatchSize bounds how many records are processed together before the
	// page buffer grows again. Must be >= 1.
	BatchSize int

	// PageDelayMin/Max bound the uniform random wait between successfully
	// completed pages. Pacing keeps the admin panel from throttling the
	// session.
	PageDelayMin time.Duration
	PageDelayMax time.Duration

	// RetryCeiling is how many times a failing page is retried before it
	// is skipped. Zero means skip on first failure.
	RetryCeiling int

	// BackoffBase and BackoffCap shape the exponential retry backoff.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Resume seeds progress from the store's completed pages instead of
	// starting at page 1.
	Resume bool
}

func (o Options) validate() error {
	switch {
	case o.MaxPages <= 0:
		return eris.New("collect: max pages must be positive")
	case o.BatchSize < 1:
		return eris.New("collect: batch size must be >= 1")
	case o.PageDelayMin < 0:
		return eris.New("collect: page delay min must be >= 0")
	case o.PageDelayMax < o.PageDelayMin:
		return eris.New("collect: page delay max must be >= min")
	case o.RetryCeiling < 0:
		return eris.New("collect: retry ceiling must be >= 0")
	}
	return nil
}

// Engine is the collection pipeline for one run. The fetcher is a single
// stateful session, so pages are fetched strictly sequentially.
type Engine struct {
	fetcher fetcher.Fetcher
	store   store.Store
	opts    Options
	log     *zap.Logger

	// sleep and delayIn are injectable so tests run without real waits.
	sleep   resilience.Sleeper
	delayIn func(min, max time.Duration) time.Duration
}

// NewEngine creates a collection engine.
func NewEngine(f fetcher.Fetcher, s store.Store, opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		fetcher: f,
		store:   s,
		opts:    opts,
		log:     zap.L().With(zap.String("component", "collect.engine")),
		sleep:   resilience.SleepWithContext,
		delayIn: uniformDelay,
	}, nil
}

func uniformDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min+1)))
}

// Collect runs the fetch loop from the first uncollected page up to
// MaxPages. The summary is always returned, even on fatal store errors or
// cancellation; the error reports why the run stopped early.
func (e *Engine) Collect(ctx context.Context) (*model.CollectionSummary, error) {
	summary := &model.CollectionSummary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	defer func() { summary.FinishedAt = time.Now().UTC() }()

	startPage := 1
	if e.opts.Resume {
		last, err := e.store.LastCompletedPage(ctx)
		if err != nil {
			return summary, eris.Wrap(err, "collect: seed resume progress")
		}
		startPage = last + 1
		summary.LastCompletedPage = last
		e.log.Info("resuming collection",
			zap.String("run_id", summary.RunID),
			zap.Int("start_page", startPage),
		)
	}

	seen, err := e.seedSeenIDs(ctx)
	if err != nil {
		return summary, err
	}

	for page := startPage; page <= e.opts.MaxPages; page++ {
		if ctx.Err() != nil {
			e.log.Info("collection cancelled", zap.Int("next_page", page))
			return summary, eris.Wrap(ctx.Err(), "collect: cancelled")
		}

		// A sparse store (earlier skip re-runs) may already hold this page.
		done, err := e.store.IsPageComplete(ctx, page)
		if err != nil {
			return summary, eris.Wrapf(err, "collect: check page %d", page)
		}
		if done {
			continue
		}

		hasMore, err := e.collectPage(ctx, page, seen, summary)
		if err != nil {
			return summary, err
		}
		if !hasMore {
			e.log.Info("end of data signalled", zap.Int("page", page))
			break
		}

		if page < e.opts.MaxPages {
			if err := e.sleep(ctx, e.delayIn(e.opts.PageDelayMin, e.opts.PageDelayMax)); err != nil {
				return summary, eris.Wrap(ctx.Err(), "collect: cancelled")
			}
		}
	}

	e.log.Info("collection run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("pages_visited", summary.PagesVisited),
		zap.Ints("pages_skipped", summary.PagesSkipped),
		zap.Int("records", summary.RecordsCollected),
		zap.Int("dropped", summary.RecordsDropped),
	)
	return summary, nil
}

// CollectPages re-visits an explicit set of pages, used to re-collect pages
// skipped by an earlier run. End-of-data signals are ignored here since the
// pages are known to exist.
func (e *Engine) CollectPages(ctx context.Context, pages []int) (*model.CollectionSummary, error) {
	summary := &model.CollectionSummary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	defer func() { summary.FinishedAt = time.Now().UTC() }()

	seen, err := e.seedSeenIDs(ctx)
	if err != nil {
		return summary, err
	}

	for i, page := range pages {
		if ctx.Err() != nil {
			return summary, eris.Wrap(ctx.Err(), "collect: cancelled")
		}

		done, err := e.store.IsPageComplete(ctx, page)
		if err != nil {
			return summary, eris.Wrapf(err, "collect: check page %d", page)
		}
		if done {
			continue
		}

		if _, err := e.collectPage(ctx, page, seen, summary); err != nil {
			return summary, err
		}

		if i < len(pages)-1 {
			if err := e.sleep(ctx, e.delayIn(e.opts.PageDelayMin, e.opts.PageDelayMax)); err != nil {
				return summary, eris.Wrap(ctx.Err(), "collect: cancelled")
			}
		}
	}
	return summary, nil
}

// seedSeenIDs loads already-stored IDs so re-observed records are discarded
// rather than re-stored.
func (e *Engine) seedSeenIDs(ctx context.Context) (map[string]struct{}, error) {
	stored, err := e.store.LoadAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "collect: seed seen ids")
	}
	seen := make(map[string]struct{}, len(stored))
	for _, rec := range stored {
		seen[rec.ID] = struct{}{}
	}
	return seen, nil
}

// collectPage fetches one page with retry, filters and flushes its records,
// and records the outcome. It returns the page's has-more signal. Store
// failures are fatal; fetch failures end in a logged skip.
func (e *Engine) collectPage(ctx context.Context, page int, seen map[string]struct{}, summary *model.CollectionSummary) (bool, error) {
	retryCfg := resilience.RetryConfig{
		MaxAttempts:    e.opts.RetryCeiling + 1,
		InitialBackoff: e.opts.BackoffBase,
		MaxBackoff:     e.opts.BackoffCap,
		Multiplier:     2.0,
		ShouldRetry:    fetcher.IsRetryable,
		Sleep:          e.sleep,
		OnRetry: func(attempt int, err error) {
			e.log.Warn("page fetch failed, retrying",
				zap.Int("page", page),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			e.logOutcome(ctx, summary.RunID, page, model.PageOutcomeRetry, err.Error())
		},
	}

	fetched, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*fetcher.Page, error) {
		return e.fetcher.FetchPage(ctx, page)
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, eris.Wrap(ctx.Err(), "collect: cancelled")
		}
		e.log.Warn("page skipped",
			zap.Int("page", page),
			zap.Error(err),
		)
		e.logOutcome(ctx, summary.RunID, page, model.PageOutcomeSkipped, err.Error())
		summary.PagesVisited++
		summary.PagesSkipped = append(summary.PagesSkipped, page)
		return true, nil
	}

	buffer := make([]model.SubmissionRecord, 0, len(fetched.Records))
	batches(fetched.Records, e.opts.BatchSize)(func(batch []fetcher.Record) bool {
		for _, raw := range batch {
			rec := model.SubmissionRecord{
				ID:         raw.ID,
				Username:   raw.Username,
				Problem:    raw.Problem,
				Language:   raw.Language,
				SourceCode: raw.SourceCode,
				PageIndex:  page,
			}
			if err := rec.Validate(); err != nil {
				e.log.Warn("dropping malformed record",
					zap.Int("page", page),
					zap.String("id", rec.ID),
					zap.Error(err),
				)
				summary.RecordsDropped++
				continue
			}
			if _, dup := seen[rec.ID]; dup {
				summary.DuplicateIDsSeen++
				continue
			}
			seen[rec.ID] = struct{}{}
			buffer = append(buffer, rec)
		}
		return true
	})

	// A failed flush aborts the run; the summary stays at the last page
	// confirmed written.
	if err := e.store.AppendPage(ctx, page, buffer); err != nil {
		return false, eris.Wrapf(err, "collect: flush page %d", page)
	}

	summary.PagesVisited++
	summary.LastCompletedPage = page
	summary.RecordsCollected += len(buffer)
	e.logOutcome(ctx, summary.RunID, page, model.PageOutcomeSuccess, "")
	e.log.Info("page collected",
		zap.Int("page", page),
		zap.Int("records", len(buffer)),
		zap.Bool("has_more", fetched.HasMore),
	)

	return fetched.HasMore, nil
}

// logOutcome writes to the run log; log failures are reported but never
// fail the page, the summary still accounts for it.
func (e *Engine) logOutcome(ctx context.Context, runID string, page int, outcome model.PageOutcome, detail string) {
	err := e.store.LogPageOutcome(ctx, model.PageLogEntry{
		RunID:     runID,
		PageIndex: page,
		Outcome:   outcome,
		Detail:    detail,
		LoggedAt:  time.Now().UTC(),
	})
	if err != nil {
		e.log.Error("failed to record page outcome", zap.Int("page", page), zap.Error(err))
	}
}

// batches yields records in chunks of size n, preserving order.
func batches(recs []fetcher.Record, n int) func(yield func([]fetcher.Record) bool) {
	return func(yield func([]fetcher.Record) bool) {
		for start := 0; start < len(recs); start += n {
			end := min(start+n, len(recs))
			if !yield(recs[start:end]) {
				return
			}
		}
	}
}
