package catalog

import (
	"cmp"
	"slices"
	"strings"
)

// Sort returns a stably ordered copy of records. Records with equal keys keep
// their input order in both directions. Unknown keys fall back to approach
// time.
func Sort(records []Record, key SortKey, dir SortDirection) []Record {
	out := slices.Clone(records)
	if out == nil {
		out = []Record{}
	}
	compare := comparator(key)
	if dir == Descending {
		asc := compare
		compare = func(a, b Record) int { return asc(b, a) }
	}
	slices.SortStableFunc(out, compare)
	return out
}

func comparator(key SortKey) func(a, b Record) int {
	switch key {
	case SortByDesignation:
		return func(a, b Record) int { return strings.Compare(a.Designation, b.Designation) }
	case SortByDistance:
		return func(a, b Record) int { return cmp.Compare(a.DistanceAU, b.DistanceAU) }
	case SortByVelocity:
		return func(a, b Record) int { return cmp.Compare(a.VelocityKmS, b.VelocityKmS) }
	default:
		return func(a, b Record) int { return a.ApproachTime.Compare(b.ApproachTime) }
	}
}
