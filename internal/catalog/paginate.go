package catalog

// Page is one slice of an ordered record set.
type Page struct {
	Rows       []Record `json:"rows"`
	PageIndex  int      `json:"page"`
	PageSize   int      `json:"page_size"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
}

// TotalPages returns ceil(count/pageSize), never less than 1.
func TotalPages(count, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if count <= 0 {
		return 1
	}
	// count+pageSize-1 overflows for huge page sizes.
	return (count-1)/pageSize + 1
}

// Paginate returns the rows of the requested 1-based page. A page outside
// [1, TotalPages] yields an empty slice; callers clamp on the next query.
func Paginate(sorted []Record, pageIndex, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page := Page{
		Rows:       []Record{},
		PageIndex:  pageIndex,
		PageSize:   pageSize,
		Total:      len(sorted),
		TotalPages: TotalPages(len(sorted), pageSize),
	}
	if pageIndex < 1 || pageIndex > page.TotalPages {
		return page
	}
	start := (pageIndex - 1) * pageSize
	end := min(start+pageSize, len(sorted))
	page.Rows = append(page.Rows, sorted[start:end]...)
	return page
}
