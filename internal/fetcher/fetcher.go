// Package fetcher retrieves pages of submission records from the judge's
// admin interface. The collection engine only sees the Fetcher capability;
// the browser session behind it is an implementation detail.
package fetcher

import (
	"context"
	"errors"
	"fmt"
)

// Page is one page's worth of submission rows. HasMore is false when the
// page carried no pagination control pointing further, which the engine
// treats as an unambiguous end-of-data signal.
type Page struct {
	Records []Record
	HasMore bool
}

// Record is a raw submission row as parsed from the admin table. It mirrors
// model.SubmissionRecord but lives here so the parser has no dependency on
// the rest of the pipeline.
type Record struct {
	ID         string
	Username   string
	Problem    string
	Language   string
	SourceCode string
}

// Fetcher returns one page of submission records by index (1-based).
type Fetcher interface {
	FetchPage(ctx context.Context, pageIndex int) (*Page, error)
}

// ErrorKind classifies fetch failures for retry decisions.
type ErrorKind string

const (
	KindTimeout  ErrorKind = "timeout"
	KindNotFound ErrorKind = "not_found"
	KindBlocked  ErrorKind = "blocked"
	KindUnknown  ErrorKind = "unknown"
)

// FetchError is a classified page-fetch failure.
type FetchError struct {
	Kind      ErrorKind
	PageIndex int
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d: %s: %v", e.PageIndex, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with a kind and page index.
func NewFetchError(kind ErrorKind, pageIndex int, err error) *FetchError {
	return &FetchError{Kind: kind, PageIndex: pageIndex, Err: err}
}

// IsRetryable reports whether a fetch failure is worth retrying at the page
// level. Timeouts and blocks are temporary; a missing page is not.
func IsRetryable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		// Unclassified errors get the benefit of the doubt: the failure
		// policy is retry-then-skip, never fatal.
		return true
	}
	switch fe.Kind {
	case KindNotFound:
		return false
	default:
		return true
	}
}
