package catalog

import (
	"fmt"
	"strings"
	"time"
)

// SortKey names a sortable record field.
type SortKey string

const (
	SortByDesignation  SortKey = "designation"
	SortByApproachTime SortKey = "approach_time"
	SortByDistance     SortKey = "distance_au"
	SortByVelocity     SortKey = "velocity_km_s"
)

// Valid reports whether k is a known key.
func (k SortKey) Valid() bool {
	switch k {
	case SortByDesignation, SortByApproachTime, SortByDistance, SortByVelocity:
		return true
	}
	return false
}

// SortDirection orders ascending or descending.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// Valid reports whether d is a known direction.
func (d SortDirection) Valid() bool {
	return d == Ascending || d == Descending
}

// DefaultPageSize is the page size used when none is given.
const DefaultPageSize = 10

// PageSizes lists the page sizes offered to operators.
var PageSizes = []int{10, 25, 50, 100}

// IsRecognizedPageSize reports whether size is one of PageSizes.
func IsRecognizedPageSize(size int) bool {
	for _, s := range PageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// ViewQuery holds the filter, sort and pagination parameters of one
// derivation. It is a value: the With* helpers return modified copies.
type ViewQuery struct {
	SearchTerm    string        `json:"search_term"`
	MinDate       *time.Time    `json:"min_date,omitempty"`
	SortKey       SortKey       `json:"sort_key"`
	SortDirection SortDirection `json:"sort_direction"`
	PageIndex     int           `json:"page_index"`
	PageSize      int           `json:"page_size"`
}

// DefaultViewQuery lists the newest approaches first.
func DefaultViewQuery() ViewQuery {
	return ViewQuery{
		SortKey:       SortByApproachTime,
		SortDirection: Descending,
		PageIndex:     1,
		PageSize:      DefaultPageSize,
	}
}

// WithSearchTerm sets the search term. A changed term moves back to page 1.
func (q ViewQuery) WithSearchTerm(term string) ViewQuery {
	if term == q.SearchTerm {
		return q
	}
	q.SearchTerm = term
	q.PageIndex = 1
	return q
}

// WithMinDate sets the inclusive lower bound on approach time; nil removes it.
// A changed bound moves back to page 1.
func (q ViewQuery) WithMinDate(minDate *time.Time) ViewQuery {
	if sameInstant(q.MinDate, minDate) {
		return q
	}
	if minDate != nil {
		t := *minDate
		minDate = &t
	}
	q.MinDate = minDate
	q.PageIndex = 1
	return q
}

// WithSort sets the sort key and direction.
func (q ViewQuery) WithSort(key SortKey, dir SortDirection) ViewQuery {
	q.SortKey = key
	q.SortDirection = dir
	return q
}

// WithPage moves to the given 1-based page.
func (q ViewQuery) WithPage(page int) ViewQuery {
	q.PageIndex = page
	return q
}

// WithPageSize changes the page size and moves back to page 1.
func (q ViewQuery) WithPageSize(size int) ViewQuery {
	if size == q.PageSize {
		return q
	}
	q.PageSize = size
	q.PageIndex = 1
	return q
}

// Clamp pulls PageIndex back into [1, totalPages].
func (q ViewQuery) Clamp(totalPages int) ViewQuery {
	if totalPages < 1 {
		totalPages = 1
	}
	if q.PageIndex < 1 {
		q.PageIndex = 1
	}
	if q.PageIndex > totalPages {
		q.PageIndex = totalPages
	}
	return q
}

// Validate reports structural problems with the query.
func (q ViewQuery) Validate() error {
	if !q.SortKey.Valid() {
		return &ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown key %q", q.SortKey)}
	}
	if !q.SortDirection.Valid() {
		return &ValidationError{Field: "dir", Reason: fmt.Sprintf("unknown direction %q", q.SortDirection)}
	}
	if q.PageIndex < 1 {
		return &ValidationError{Field: "page", Reason: "must be >= 1"}
	}
	if q.PageSize <= 0 {
		return &ValidationError{Field: "page_size", Reason: "must be > 0"}
	}
	return nil
}

// String renders the query for logs and cache keys.
func (q ViewQuery) String() string {
	minDate := "-"
	if q.MinDate != nil {
		minDate = q.MinDate.UTC().Format(time.RFC3339)
	}
	return strings.Join([]string{
		"q=" + q.SearchTerm,
		"min=" + minDate,
		"sort=" + string(q.SortKey),
		"dir=" + string(q.SortDirection),
		fmt.Sprintf("page=%d", q.PageIndex),
		fmt.Sprintf("size=%d", q.PageSize),
	}, "&")
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
