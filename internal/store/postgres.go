package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/courseops/subaudit/internal/model"
)

// pgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool, for collections that must
// survive across machines.
type PostgresStore struct {
	pool    pgxPool
	closeFn func()
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id          TEXT PRIMARY KEY,
	username    TEXT NOT NULL,
	problem     TEXT NOT NULL,
	language    TEXT NOT NULL DEFAULT '',
	source_code TEXT NOT NULL DEFAULT '',
	page_index  INTEGER NOT NULL,
	seq         BIGSERIAL,
	stored_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pages (
	page_index   INTEGER PRIMARY KEY,
	record_count INTEGER NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS page_log (
	seq        BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL,
	page_index INTEGER NOT NULL,
	outcome    TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	logged_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_problem ON submissions(problem);
CREATE INDEX IF NOT EXISTS idx_page_log_page ON page_log(page_index);
`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) AppendPage(ctx context.Context, pageIndex int, recs []model.SubmissionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append page")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, rec := range recs {
		_, err := tx.Exec(ctx,
			`INSERT INTO submissions (id, username, problem, language, source_code, page_index)
			 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
			rec.ID, rec.Username, rec.Problem, rec.Language, rec.SourceCode, pageIndex,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert submission %s", rec.ID)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO pages (page_index, record_count) VALUES ($1, $2)
		 ON CONFLICT (page_index) DO UPDATE SET record_count = EXCLUDED.record_count, completed_at = now()`,
		pageIndex, len(recs),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark page %d complete", pageIndex)
	}

	return eris.Wrapf(tx.Commit(ctx), "postgres: commit page %d", pageIndex)
}

func (s *PostgresStore) IsPageComplete(ctx context.Context, pageIndex int) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pages WHERE page_index = $1`, pageIndex,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: check page %d", pageIndex)
	}
	return n > 0, nil
}

func (s *PostgresStore) LastCompletedPage(ctx context.Context) (int, error) {
	var page sql.NullInt64
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(page_index) FROM pages`,
	).Scan(&page)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: last completed page")
	}
	return int(page.Int64), nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]model.SubmissionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, problem, language, source_code, page_index
		 FROM submissions ORDER BY page_index, seq`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load all")
	}
	defer rows.Close()

	var recs []model.SubmissionRecord
	for rows.Next() {
		var rec model.SubmissionRecord
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Problem, &rec.Language, &rec.SourceCode, &rec.PageIndex); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: load all iterate")
}

func (s *PostgresStore) LogPageOutcome(ctx context.Context, entry model.PageLogEntry) error {
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO page_log (run_id, page_index, outcome, detail, logged_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.RunID, entry.PageIndex, string(entry.Outcome), entry.Detail, entry.LoggedAt,
	)
	return eris.Wrapf(err, "postgres: log page %d", entry.PageIndex)
}

func (s *PostgresStore) RunLog(ctx context.Context) ([]model.PageLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, page_index, outcome, detail, logged_at FROM page_log ORDER BY seq`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: run log")
	}
	defer rows.Close()

	var entries []model.PageLogEntry
	for rows.Next() {
		var e model.PageLogEntry
		var outcome string
		if err := rows.Scan(&e.RunID, &e.PageIndex, &outcome, &e.Detail, &e.LoggedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log entry")
		}
		e.Outcome = model.PageOutcome(outcome)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: run log iterate")
}
