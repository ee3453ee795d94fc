// Package report renders duplicate-detection results into summary and
// detailed artifacts.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/courseops/subaudit/internal/detect"
	"github.com/courseops/subaudit/internal/model"
	"github.com/courseops/subaudit/internal/normalize"
)

// SummaryRow is one line of the per-problem summary table.
type SummaryRow struct {
	Problem              string `json:"problem"`
	TotalSubmissions     int    `json:"total_submissions"`
	DuplicateGroups      int    `json:"duplicate_groups"`
	DuplicateSubmissions int    `json:"duplicate_submissions"`
}

// Member identifies one submission inside a duplicate group.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// GroupEntry is a duplicate group enriched for rendering: member identities
// and a representative cleaned code sample.
type GroupEntry struct {
	model.DuplicateGroup
	Members []Member `json:"members"`
	Sample  string   `json:"sample"`
}

// Report is the rendered detection output, ready for its writers.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Summary     []SummaryRow `json:"summary"`
	Groups      []GroupEntry `json:"groups"`
}

// Build assembles a Report from detection results and the record set they
// were computed over. Ordering follows detection's deterministic order.
func Build(res *detect.Result, records []model.SubmissionRecord) *Report {
	byID := make(map[string]model.SubmissionRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	rep := &Report{GeneratedAt: time.Now().UTC()}

	problems := make([]string, 0, len(res.TotalByProblem))
	for p := range res.TotalByProblem {
		problems = append(problems, p)
	}
	sort.Strings(problems)

	for _, problem := range problems {
		rep.Summary = append(rep.Summary, SummaryRow{
			Problem:              problem,
			TotalSubmissions:     res.TotalByProblem[problem],
			DuplicateGroups:      len(res.Groups[problem]),
			DuplicateSubmissions: res.DuplicateSubmissions(problem),
		})

		for _, g := range res.Groups[problem] {
			entry := GroupEntry{DuplicateGroup: g}
			for _, id := range g.MemberIDs {
				entry.Members = append(entry.Members, Member{
					ID:       id,
					Username: byID[id].Username,
				})
			}
			// First member's cleaned source stands in for the whole group;
			// by construction every member hashes identically.
			if len(g.MemberIDs) > 0 {
				entry.Sample = normalize.Clean(byID[g.MemberIDs[0]].SourceCode)
			}
			rep.Groups = append(rep.Groups, entry)
		}
	}

	return rep
}

// WriteSummaryCSV writes the per-problem summary table.
func (r *Report) WriteSummaryCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"problem", "total_submissions", "duplicate_groups", "duplicate_submissions"}); err != nil {
		return eris.Wrap(err, "report: summary header")
	}
	for _, row := range r.Summary {
		err := cw.Write([]string{
			row.Problem,
			strconv.Itoa(row.TotalSubmissions),
			strconv.Itoa(row.DuplicateGroups),
			strconv.Itoa(row.DuplicateSubmissions),
		})
		if err != nil {
			return eris.Wrapf(err, "report: summary row %s", row.Problem)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush summary")
}

// WriteGroupsCSV writes the flattened group table. Member IDs are joined
// with semicolons.
func (r *Report) WriteGroupsCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"problem", "digest", "group_size", "member_ids"}); err != nil {
		return eris.Wrap(err, "report: groups header")
	}
	for _, g := range r.Groups {
		err := cw.Write([]string{
			g.Problem,
			g.Digest,
			strconv.Itoa(g.Size()),
			strings.Join(g.MemberIDs, ";"),
		})
		if err != nil {
			return eris.Wrapf(err, "report: group row %s/%s", g.Problem, g.Digest)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush groups")
}

// WriteText writes the human-readable detailed report.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Duplicate submission report — generated %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "%d problem(s), %d duplicate group(s)\n\n", len(r.Summary), len(r.Groups))

	for _, row := range r.Summary {
		fmt.Fprintf(&b, "Problem %s: %d submissions, %d duplicate group(s), %d involved\n",
			row.Problem, row.TotalSubmissions, row.DuplicateGroups, row.DuplicateSubmissions)
	}

	for _, g := range r.Groups {
		fmt.Fprintf(&b, "\n--- %s  digest %.12s…  (%d members) ---\n", g.Problem, g.Digest, g.Size())
		for _, m := range g.Members {
			fmt.Fprintf(&b, "  %s (%s)\n", m.ID, m.Username)
		}
		if g.Sample != "" {
			b.WriteString("  sample:\n")
			for _, line := range strings.Split(g.Sample, "\n") {
				b.WriteString("    " + line + "\n")
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return eris.Wrap(err, "report: write text")
}

// WriteXLSX writes a workbook with Summary and Groups sheets.
func (r *Report) WriteXLSX(path string) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	header := summary.AddRow()
	for _, h := range []string{"Problem", "Total Submissions", "Duplicate Groups", "Duplicate Submissions"} {
		header.AddCell().Value = h
	}
	for _, row := range r.Summary {
		xr := summary.AddRow()
		xr.AddCell().Value = row.Problem
		xr.AddCell().SetInt(row.TotalSubmissions)
		xr.AddCell().SetInt(row.DuplicateGroups)
		xr.AddCell().SetInt(row.DuplicateSubmissions)
	}

	groups, err := f.AddSheet("Groups")
	if err != nil {
		return eris.Wrap(err, "report: add groups sheet")
	}
	gh := groups.AddRow()
	for _, h := range []string{"Problem", "Digest", "Group Size", "Member IDs"} {
		gh.AddCell().Value = h
	}
	for _, g := range r.Groups {
		xr := groups.AddRow()
		xr.AddCell().Value = g.Problem
		xr.AddCell().Value = g.Digest
		xr.AddCell().SetInt(g.Size())
		xr.AddCell().Value = strings.Join(g.MemberIDs, ";")
	}

	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

// WriteRunSummaryYAML writes the collection run manifest.
func WriteRunSummaryYAML(path string, summary *model.CollectionSummary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "report: marshal run summary")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "report: write %s", path)
}
