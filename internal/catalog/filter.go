package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Filter returns the records matching the query's search term and minimum
// date, in input order. The input slice is not modified.
func Filter(records []Record, q ViewQuery) []Record {
	// cases.Caser is stateful, so each call gets its own.
	lower := cases.Lower(language.Und)
	term := lower.String(q.SearchTerm)
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if q.MinDate != nil && rec.ApproachTime.Before(*q.MinDate) {
			continue
		}
		if term != "" && !strings.Contains(lower.String(rec.Designation), term) {
			continue
		}
		out = append(out, rec)
	}
	return out
}
