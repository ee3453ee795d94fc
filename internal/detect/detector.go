// Package detect groups submissions into exact-duplicate clusters per
// problem. Detection is a pure function of its input: identical record sets
// produce identical groups in identical order, regardless of input ordering.
package detect

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/courseops/subaudit/internal/model"
	"github.com/courseops/subaudit/internal/normalize"
)

// Result holds the detection output for one record set.
type Result struct {
	// Groups maps problem -> duplicate groups, ordered by descending group
	// size, then ascending digest.
	Groups map[string][]model.DuplicateGroup

	// TotalByProblem counts all submissions seen per problem, including
	// unique ones that formed no group.
	TotalByProblem map[string]int
}

// Problems returns the problems with at least one duplicate group, in
// ascending lexical order.
func (r *Result) Problems() []string {
	out := make([]string, 0, len(r.Groups))
	for p := range r.Groups {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GroupCount returns the total number of duplicate groups across problems.
func (r *Result) GroupCount() int {
	n := 0
	for _, gs := range r.Groups {
		n += len(gs)
	}
	return n
}

// DuplicateSubmissions returns the number of submissions that are members of
// some duplicate group for the given problem.
func (r *Result) DuplicateSubmissions(problem string) int {
	n := 0
	for _, g := range r.Groups[problem] {
		n += g.Size()
	}
	return n
}

// maxShards bounds the per-problem workers. Each problem partition is
// independent, so sharding changes nothing but wall time.
const maxShards = 8

// Detect partitions records by problem, fingerprints each submission's
// normalized source, and returns every cluster of two or more submissions
// sharing a digest. Records that fail validation are ignored with a log
// entry rather than aborting the pass.
func Detect(records []model.SubmissionRecord) *Result {
	log := zap.L().With(zap.String("component", "detect"))

	byProblem := make(map[string][]model.SubmissionRecord)
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			log.Warn("skipping malformed record", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		byProblem[rec.Problem] = append(byProblem[rec.Problem], rec)
	}

	res := &Result{
		Groups:         make(map[string][]model.DuplicateGroup),
		TotalByProblem: make(map[string]int, len(byProblem)),
	}
	for p, recs := range byProblem {
		res.TotalByProblem[p] = len(recs)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxShards)

	for problem, recs := range byProblem {
		g.Go(func() error {
			groups := groupProblem(problem, recs)
			if len(groups) == 0 {
				return nil
			}
			mu.Lock()
			res.Groups[problem] = groups
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // shard workers never return errors

	return res
}

// groupProblem clusters one problem's submissions by content digest and
// returns the clusters of size >= 2, deterministically ordered.
func groupProblem(problem string, recs []model.SubmissionRecord) []model.DuplicateGroup {
	byDigest := make(map[string][]string)
	for _, rec := range recs {
		digest := normalize.Fingerprint(normalize.Clean(rec.SourceCode))
		byDigest[digest] = append(byDigest[digest], rec.ID)
	}

	var groups []model.DuplicateGroup
	for digest, ids := range byDigest {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		groups = append(groups, model.DuplicateGroup{
			Problem:   problem,
			Digest:    digest,
			MemberIDs: ids,
		})
	}

	// Largest clusters first; digest breaks ties so the order is stable
	// across runs.
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Size() != groups[j].Size() {
			return groups[i].Size() > groups[j].Size()
		}
		return groups[i].Digest < groups[j].Digest
	})

	return groups
}
