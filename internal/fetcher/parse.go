package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Selectors for the admin submission list. The panel renders one <tr> per
// submission with the raw source inside a collapsed <pre> in the last cell,
// and a "next" pagination link that loses its href on the final page.
const (
	rowSelector    = "table.submission-list tbody tr"
	sourceSelector = "pre.source-code"
	nextSelector   = ".pagination a.next[href]"
)

// ParsePage extracts submission rows and the has-more signal from rendered
// admin list HTML.
func ParsePage(html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "parse: read document")
	}

	page := &Page{}
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return // header or decoration row
		}
		rec := Record{
			ID:         cellText(cells.Eq(0)),
			Username:   cellText(cells.Eq(1)),
			Problem:    cellText(cells.Eq(2)),
			Language:   cellText(cells.Eq(3)),
			SourceCode: row.Find(sourceSelector).Text(),
		}
		page.Records = append(page.Records, rec)
	})

	page.HasMore = doc.Find(nextSelector).Length() > 0
	return page, nil
}

// HasSubmissionTable reports whether the HTML contains the submission list
// table at all. An existing page with zero rows is end-of-data; a page with
// no table does not exist.
func HasSubmissionTable(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find("table.submission-list").Length() > 0
}

func cellText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}
