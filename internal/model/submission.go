// Package model defines the shared types for submission collection and
// duplicate detection.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// SubmissionRecord is one code submission as observed on the judge's admin
// submission list. ID is assigned by the source system and is unique across
// the full collected set.
type SubmissionRecord struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Problem    string `json:"problem"`
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
	PageIndex  int    `json:"page_index"`
}

// Validate reports whether the record carries the fields required downstream.
// Records failing validation are dropped by the collection engine and counted
// in the run summary.
func (r SubmissionRecord) Validate() error {
	switch {
	case r.ID == "":
		return eris.New("submission: missing id")
	case r.Username == "":
		return eris.Errorf("submission %s: missing username", r.ID)
	case r.Problem == "":
		return eris.Errorf("submission %s: missing problem", r.ID)
	}
	return nil
}

// NormalizedSubmission is a SubmissionRecord plus its canonical text and
// content digest. Derived on demand, never persisted on its own.
type NormalizedSubmission struct {
	SubmissionRecord
	CleanCode string `json:"clean_code"`
	Digest    string `json:"digest"`
}

// DuplicateGroup is a set of two or more submissions for the same problem
// whose normalized source hashes to the same digest. Immutable once built.
type DuplicateGroup struct {
	Problem   string   `json:"problem"`
	Digest    string   `json:"digest"`
	MemberIDs []string `json:"member_ids"`
}

// Size returns the number of submissions in the group.
func (g DuplicateGroup) Size() int { return len(g.MemberIDs) }

// CollectionSummary is the outcome of one collection run. It is always
// returned, even when the run aborts early.
type CollectionSummary struct {
	RunID             string    `json:"run_id" yaml:"run_id"`
	StartedAt         time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt        time.Time `json:"finished_at" yaml:"finished_at"`
	PagesVisited      int       `json:"pages_visited" yaml:"pages_visited"`
	PagesSkipped      []int     `json:"pages_skipped" yaml:"pages_skipped"`
	RecordsCollected  int       `json:"records_collected" yaml:"records_collected"`
	RecordsDropped    int       `json:"records_dropped" yaml:"records_dropped"`
	DuplicateIDsSeen  int       `json:"duplicate_ids_seen" yaml:"duplicate_ids_seen"`
	LastCompletedPage int       `json:"last_completed_page" yaml:"last_completed_page"`
}

// PageOutcome labels a page's fate in the run log.
type PageOutcome string

const (
	PageOutcomeSuccess PageOutcome = "success"
	PageOutcomeRetry   PageOutcome = "retry"
	PageOutcomeSkipped PageOutcome = "skipped"
)

// PageLogEntry is one run-log line recording what happened to a page.
type PageLogEntry struct {
	RunID     string      `json:"run_id"`
	PageIndex int         `json:"page_index"`
	Outcome   PageOutcome `json:"outcome"`
	Detail    string      `json:"detail,omitempty"`
	LoggedAt  time.Time   `json:"logged_at"`
}
