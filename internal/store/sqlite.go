package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/courseops/subaudit/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id          TEXT PRIMARY KEY,
	username    TEXT NOT NULL,
	problem     TEXT NOT NULL,
	language    TEXT NOT NULL DEFAULT '',
	source_code TEXT NOT NULL DEFAULT '',
	page_index  INTEGER NOT NULL,
	stored_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pages (
	page_index   INTEGER PRIMARY KEY,
	record_count INTEGER NOT NULL,
	completed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS page_log (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	page_index INTEGER NOT NULL,
	outcome    TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	logged_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_problem ON submissions(problem);
CREATE INDEX IF NOT EXISTS idx_submissions_page ON submissions(page_index);
CREATE INDEX IF NOT EXISTS idx_page_log_page ON page_log(page_index);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendPage(ctx context.Context, pageIndex int, recs []model.SubmissionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append page")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range recs {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO submissions (id, username, problem, language, source_code, page_index)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Username, rec.Problem, rec.Language, rec.SourceCode, pageIndex,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert submission %s", rec.ID)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO pages (page_index, record_count) VALUES (?, ?)`,
		pageIndex, len(recs),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark page %d complete", pageIndex)
	}

	return eris.Wrapf(tx.Commit(), "sqlite: commit page %d", pageIndex)
}

func (s *SQLiteStore) IsPageComplete(ctx context.Context, pageIndex int) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pages WHERE page_index = ?`, pageIndex,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: check page %d", pageIndex)
	}
	return n > 0, nil
}

func (s *SQLiteStore) LastCompletedPage(ctx context.Context) (int, error) {
	var page sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(page_index) FROM pages`,
	).Scan(&page)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last completed page")
	}
	return int(page.Int64), nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]model.SubmissionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, problem, language, source_code, page_index
		 FROM submissions ORDER BY page_index, rowid`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load all")
	}
	defer rows.Close()

	var recs []model.SubmissionRecord
	for rows.Next() {
		var rec model.SubmissionRecord
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Problem, &rec.Language, &rec.SourceCode, &rec.PageIndex); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: load all iterate")
}

func (s *SQLiteStore) LogPageOutcome(ctx context.Context, entry model.PageLogEntry) error {
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_log (run_id, page_index, outcome, detail, logged_at) VALUES (?, ?, ?, ?, ?)`,
		entry.RunID, entry.PageIndex, string(entry.Outcome), entry.Detail, entry.LoggedAt,
	)
	return eris.Wrapf(err, "sqlite: log page %d", entry.PageIndex)
}

func (s *SQLiteStore) RunLog(ctx context.Context) ([]model.PageLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, page_index, outcome, detail, logged_at FROM page_log ORDER BY seq`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: run log")
	}
	defer rows.Close()

	var entries []model.PageLogEntry
	for rows.Next() {
		var e model.PageLogEntry
		var outcome string
		if err := rows.Scan(&e.RunID, &e.PageIndex, &outcome, &e.Detail, &e.LoggedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log entry")
		}
		e.Outcome = model.PageOutcome(outcome)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: run log iterate")
}
