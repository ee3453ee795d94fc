package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/courseops/subaudit/internal/model"
)

// CSVStore implements Store as plain files in a directory: one
// page-NNNN.csv per completed page, a combined.csv over all pages, and a
// runlog.csv of page outcomes. Page completion is the existence of the page
// file; the combined file is an export artifact and is rebuilt from the page
// files when loading.
type CSVStore struct {
	dir string
}

var csvHeader = []string{"id", "username", "problem", "language", "source_code"}

// NewCSV creates (if needed) and opens a CSV store directory.
func NewCSV(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "csvstore: create dir %s", dir)
	}
	return &CSVStore{dir: dir}, nil
}

func (s *CSVStore) Migrate(context.Context) error { return nil }

func (s *CSVStore) Close() error { return nil }

func (s *CSVStore) pagePath(pageIndex int) string {
	return filepath.Join(s.dir, fmt.Sprintf("page-%04d.csv", pageIndex))
}

func (s *CSVStore) AppendPage(_ context.Context, pageIndex int, recs []model.SubmissionRecord) error {
	// Write to a temp file and rename so a partially written page never
	// counts as complete.
	tmp, err := os.CreateTemp(s.dir, "page-*.tmp")
	if err != nil {
		return eris.Wrap(err, "csvstore: create temp page file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return eris.Wrap(err, "csvstore: write header")
	}
	for _, rec := range recs {
		if err := w.Write([]string{rec.ID, rec.Username, rec.Problem, rec.Language, rec.SourceCode}); err != nil {
			tmp.Close()
			return eris.Wrapf(err, "csvstore: write record %s", rec.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "csvstore: flush page")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "csvstore: close temp page file")
	}
	if err := os.Rename(tmp.Name(), s.pagePath(pageIndex)); err != nil {
		return eris.Wrapf(err, "csvstore: finalize page %d", pageIndex)
	}

	return s.appendCombined(recs)
}

func (s *CSVStore) appendCombined(recs []model.SubmissionRecord) error {
	path := filepath.Join(s.dir, "combined.csv")
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrap(err, "csvstore: open combined")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(csvHeader); err != nil {
			return eris.Wrap(err, "csvstore: combined header")
		}
	}
	for _, rec := range recs {
		if err := w.Write([]string{rec.ID, rec.Username, rec.Problem, rec.Language, rec.SourceCode}); err != nil {
			return eris.Wrapf(err, "csvstore: combined record %s", rec.ID)
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "csvstore: flush combined")
}

func (s *CSVStore) IsPageComplete(_ context.Context, pageIndex int) (bool, error) {
	_, err := os.Stat(s.pagePath(pageIndex))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "csvstore: stat page %d", pageIndex)
	}
	return true, nil
}

func (s *CSVStore) LastCompletedPage(ctx context.Context) (int, error) {
	pages, err := s.pageIndexes()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, nil
	}
	return pages[len(pages)-1], nil
}

func (s *CSVStore) pageIndexes() ([]int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "page-*.csv"))
	if err != nil {
		return nil, eris.Wrap(err, "csvstore: list pages")
	}
	var pages []int
	for _, m := range matches {
		base := filepath.Base(m)
		n, err := strconv.Atoi(base[len("page-") : len(base)-len(".csv")])
		if err != nil {
			continue
		}
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages, nil
}

func (s *CSVStore) LoadAll(ctx context.Context) ([]model.SubmissionRecord, error) {
	pages, err := s.pageIndexes()
	if err != nil {
		return nil, err
	}

	var recs []model.SubmissionRecord
	for _, page := range pages {
		f, err := os.Open(s.pagePath(page))
		if err != nil {
			return nil, eris.Wrapf(err, "csvstore: open page %d", page)
		}
		rows, err := csv.NewReader(f).ReadAll()
		f.Close() //nolint:errcheck
		if err != nil {
			return nil, eris.Wrapf(err, "csvstore: read page %d", page)
		}
		for i, row := range rows {
			if i == 0 {
				continue // header
			}
			if len(row) < 5 {
				return nil, eris.Errorf("csvstore: page %d row %d: short row", page, i)
			}
			recs = append(recs, model.SubmissionRecord{
				ID:         row[0],
				Username:   row[1],
				Problem:    row[2],
				Language:   row[3],
				SourceCode: row[4],
				PageIndex:  page,
			})
		}
	}
	return recs, nil
}

func (s *CSVStore) LogPageOutcome(_ context.Context, entry model.PageLogEntry) error {
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now().UTC()
	}

	path := filepath.Join(s.dir, "runlog.csv")
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrap(err, "csvstore: open runlog")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write([]string{"run_id", "page_index", "outcome", "detail", "logged_at"}); err != nil {
			return eris.Wrap(err, "csvstore: runlog header")
		}
	}
	err = w.Write([]string{
		entry.RunID,
		strconv.Itoa(entry.PageIndex),
		string(entry.Outcome),
		entry.Detail,
		entry.LoggedAt.Format(time.RFC3339),
	})
	if err != nil {
		return eris.Wrap(err, "csvstore: runlog record")
	}
	w.Flush()
	return eris.Wrap(w.Error(), "csvstore: flush runlog")
}

func (s *CSVStore) RunLog(ctx context.Context) ([]model.PageLogEntry, error) {
	path := filepath.Join(s.dir, "runlog.csv")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csvstore: open runlog")
	}
	defer f.Close() //nolint:errcheck

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csvstore: read runlog")
	}

	var entries []model.PageLogEntry
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 5 {
			return nil, eris.Errorf("csvstore: runlog row %d: short row", i)
		}
		page, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, eris.Wrapf(err, "csvstore: runlog row %d: page index", i)
		}
		at, err := time.Parse(time.RFC3339, row[4])
		if err != nil {
			return nil, eris.Wrapf(err, "csvstore: runlog row %d: timestamp", i)
		}
		entries = append(entries, model.PageLogEntry{
			RunID:     row[0],
			PageIndex: page,
			Outcome:   model.PageOutcome(row[2]),
			Detail:    row[3],
			LoggedAt:  at,
		})
	}
	return entries, nil
}
