package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/courseops/subaudit/internal/collect"
	"github.com/courseops/subaudit/internal/fetcher"
	"github.com/courseops/subaudit/internal/model"
	"github.com/courseops/subaudit/internal/report"
	"github.com/courseops/subaudit/internal/store"
)

var (
	collectResume       bool
	collectRetrySkipped bool
	collectMaxPages     int
	collectBatchSize    int
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect submissions from the judge admin interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Judge.BaseURL == "" {
			return eris.New("judge base URL is required (SUBAUDIT_JUDGE_BASE_URL)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		browser, err := fetcher.NewBrowser(ctx, fetcher.BrowserOptions{
			BaseURL:       cfg.Judge.BaseURL,
			SessionCookie: cfg.Judge.SessionCookie,
			PageTimeout:   time.Duration(cfg.Judge.PageTimeoutSecs) * time.Second,
			MaxRate:       cfg.Judge.MaxRate,
		})
		if err != nil {
			return eris.Wrap(err, "start browser")
		}
		defer browser.Close()

		maxPages := collectMaxPages
		if maxPages == 0 {
			maxPages = cfg.Collect.MaxPages
		}
		batchSize := collectBatchSize
		if batchSize == 0 {
			batchSize = cfg.Collect.BatchSize
		}

		engine, err := collect.NewEngine(browser, st, collect.Options{
			MaxPages:     maxPages,
			BatchSize:    batchSize,
			PageDelayMin: time.Duration(cfg.Collect.PageDelayMinSecs) * time.Second,
			PageDelayMax: time.Duration(cfg.Collect.PageDelayMaxSecs) * time.Second,
			RetryCeiling: cfg.Collect.RetryCeiling,
			BackoffBase:  time.Duration(cfg.Collect.BackoffBaseSecs) * time.Second,
			BackoffCap:   time.Duration(cfg.Collect.BackoffCapSecs) * time.Second,
			Resume:       collectResume,
		})
		if err != nil {
			return err
		}

		var summary *model.CollectionSummary
		if collectRetrySkipped {
			entries, err := st.RunLog(ctx)
			if err != nil {
				return eris.Wrap(err, "read run log")
			}
			pages := store.SkippedPages(entries)
			if len(pages) == 0 {
				zap.L().Info("no skipped pages to retry")
				return nil
			}
			summary, err = engine.CollectPages(ctx, pages)
			if err != nil {
				return eris.Wrap(err, "retry skipped pages")
			}
		} else {
			summary, err = engine.Collect(ctx)
			if err != nil {
				return eris.Wrap(err, "collect")
			}
		}

		zap.L().Info("collection complete",
			zap.String("run_id", summary.RunID),
			zap.Int("pages_visited", summary.PagesVisited),
			zap.Ints("pages_skipped", summary.PagesSkipped),
			zap.Int("records", summary.RecordsCollected),
			zap.Int("dropped", summary.RecordsDropped),
			zap.Int("duplicate_ids", summary.DuplicateIDsSeen),
		)

		if err := os.MkdirAll(cfg.Report.Dir, 0o755); err != nil {
			return eris.Wrap(err, "create report dir")
		}
		path := filepath.Join(cfg.Report.Dir, "summary.yaml")
		if err := report.WriteRunSummaryYAML(path, summary); err != nil {
			zap.L().Warn("write run summary", zap.Error(err))
		}

		return nil
	},
}

func init() {
	collectCmd.Flags().BoolVar(&collectResume, "resume", false, "resume from the last completed page")
	collectCmd.Flags().BoolVar(&collectRetrySkipped, "retry-skipped", false, "revisit only pages skipped in earlier runs")
	collectCmd.Flags().IntVar(&collectMaxPages, "max-pages", 0, "page ceiling (default from config)")
	collectCmd.Flags().IntVar(&collectBatchSize, "batch-size", 0, "records per processing batch (default from config)")
	rootCmd.AddCommand(collectCmd)
}
