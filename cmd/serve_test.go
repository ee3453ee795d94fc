package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseops/subaudit/internal/model"
	"github.com/courseops/subaudit/internal/store"
)

func newServeStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewCSV(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestServe_Healthz(t *testing.T) {
	r := buildRouter(newServeStore(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_Status(t *testing.T) {
	ctx := context.Background()
	st := newServeStore(t)

	require.NoError(t, st.AppendPage(ctx, 1, []model.SubmissionRecord{
		{ID: "1", Username: "alice", Problem: "A", Language: "python", SourceCode: "print(x)"},
		{ID: "2", Username: "bob", Problem: "A", Language: "python", SourceCode: "print(y)"},
	}))
	require.NoError(t, st.LogPageOutcome(ctx, model.PageLogEntry{
		RunID: "run-1", PageIndex: 2, Outcome: model.PageOutcomeSkipped, Detail: "timeout",
	}))

	r := buildRouter(st)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		LastCompletedPage int   `json:"last_completed_page"`
		Records           int   `json:"records"`
		SkippedPages      []int `json:"skipped_pages"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.LastCompletedPage)
	assert.Equal(t, 2, body.Records)
	assert.Equal(t, []int{2}, body.SkippedPages)
}

func TestServe_Report(t *testing.T) {
	ctx := context.Background()
	st := newServeStore(t)

	require.NoError(t, st.AppendPage(ctx, 1, []model.SubmissionRecord{
		{ID: "1", Username: "alice", Problem: "A", Language: "python", SourceCode: "1: print(x)\n"},
		{ID: "2", Username: "bob", Problem: "A", Language: "python", SourceCode: "print(x)"},
	}))

	r := buildRouter(st)

	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Summary []struct {
			Problem         string `json:"problem"`
			DuplicateGroups int    `json:"duplicate_groups"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Summary, 1)
	assert.Equal(t, "A", body.Summary[0].Problem)
	assert.Equal(t, 1, body.Summary[0].DuplicateGroups)
}
