package catalog

// View is everything the presentation layer needs for one render: the page of
// rows and the chart datasets of the filtered set.
type View struct {
	Query ViewQuery `json:"query"`
	Page  Page      `json:"page"`
	// Clamped is set when the requested page was out of range and Query was
	// moved back into [1, TotalPages].
	Clamped bool   `json:"clamped"`
	Charts  Charts `json:"charts"`
}

// Derive runs the pipeline: filter, sort, paginate, and aggregate the filtered
// set. A stale page index yields an empty page.
func Derive(records []Record, q ViewQuery) View {
	filtered := Filter(records, q)
	sorted := Sort(filtered, q.SortKey, q.SortDirection)
	return View{
		Query:  q,
		Page:   Paginate(sorted, q.PageIndex, q.PageSize),
		Charts: Aggregate(filtered),
	}
}

// DeriveClamped is Derive followed by the caller-side clamp: when the page
// index falls outside the result, the query is clamped and the page rebuilt.
func DeriveClamped(records []Record, q ViewQuery) View {
	filtered := Filter(records, q)
	sorted := Sort(filtered, q.SortKey, q.SortDirection)
	page := Paginate(sorted, q.PageIndex, q.PageSize)
	clamped := q.Clamp(page.TotalPages)
	view := View{Query: q, Charts: Aggregate(filtered)}
	if clamped.PageIndex != q.PageIndex {
		view.Query = clamped
		view.Clamped = true
		page = Paginate(sorted, clamped.PageIndex, clamped.PageSize)
	}
	view.Page = page
	return view
}

// Ordered returns the filtered and sorted set without pagination, for exports.
func Ordered(records []Record, q ViewQuery) []Record {
	return Sort(Filter(records, q), q.SortKey, q.SortDirection)
}
