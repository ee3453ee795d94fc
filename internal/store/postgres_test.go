package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseops/subaudit/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_AppendPage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO submissions`).
		WithArgs("1", "alice", "two-sum", "Python 3", "print(x)", 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO pages`).
		WithArgs(1, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.AppendPage(context.Background(), 1, []model.SubmissionRecord{
		{ID: "1", Username: "alice", Problem: "two-sum", Language: "Python 3", SourceCode: "print(x)", PageIndex: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendPage_InsertFails_RollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO submissions`).
		WithArgs("1", "alice", "two-sum", "", "", 1).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.AppendPage(context.Background(), 1, []model.SubmissionRecord{
		{ID: "1", Username: "alice", Problem: "two-sum", PageIndex: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert submission 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IsPageComplete(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM pages WHERE page_index = \$1`).
		WithArgs(7).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	done, err := s.IsPageComplete(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastCompletedPage_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT MAX\(page_index\) FROM pages`).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(nil))

	last, err := s.LastCompletedPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadAll(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"id", "username", "problem", "language", "source_code", "page_index"}).
		AddRow("1", "alice", "two-sum", "Python 3", "print(x)", 1).
		AddRow("2", "bob", "two-sum", "C++17", "int main(){}", 2)
	mock.ExpectQuery(`SELECT id, username, problem, language, source_code, page_index`).
		WillReturnRows(rows)

	got, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[1].Username)
	assert.Equal(t, 2, got[1].PageIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LogPageOutcome(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO page_log`).
		WithArgs("run-1", 5, "skipped", "retry ceiling reached", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.LogPageOutcome(context.Background(), model.PageLogEntry{
		RunID:     "run-1",
		PageIndex: 5,
		Outcome:   model.PageOutcomeSkipped,
		Detail:    "retry ceiling reached",
		LoggedAt:  at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
