package catalog

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// MinDateLayout is the calendar-day form accepted for min_date.
const MinDateLayout = "2006-01-02"

// ParseViewQuery builds a ViewQuery from q, min_date, sort, dir, page and
// page_size, starting from DefaultViewQuery. page is applied last because a
// page size change resets it. Only PageSizes are accepted.
func ParseViewQuery(values url.Values) (ViewQuery, error) {
	q := DefaultViewQuery().WithSearchTerm(values.Get("q"))

	if raw := values.Get("min_date"); raw != "" {
		minDate, err := ParseMinDate(raw)
		if err != nil {
			return q, &ValidationError{Field: "min_date", Reason: "expected YYYY-MM-DD or RFC3339"}
		}
		q = q.WithMinDate(&minDate)
	}

	key, dir := q.SortKey, q.SortDirection
	if raw := values.Get("sort"); raw != "" {
		key = SortKey(raw)
	}
	if raw := values.Get("dir"); raw != "" {
		dir = SortDirection(raw)
	}
	q = q.WithSort(key, dir)

	if raw := values.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || !IsRecognizedPageSize(size) {
			return q, &ValidationError{Field: "page_size", Reason: fmt.Sprintf("must be one of %v", PageSizes)}
		}
		q = q.WithPageSize(size)
	}
	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return q, &ValidationError{Field: "page", Reason: "must be a positive integer"}
		}
		q = q.WithPage(page)
	}
	return q, q.Validate()
}

// ParseMinDate accepts a calendar day (midnight UTC) or an RFC3339 instant.
func ParseMinDate(raw string) (time.Time, error) {
	if t, err := time.Parse(MinDateLayout, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
