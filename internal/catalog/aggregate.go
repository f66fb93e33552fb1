package catalog

import (
	"cmp"
	"math"
	"slices"
)

const (
	// DangerThresholdAU classifies approaches at or under this distance as dangerous.
	DangerThresholdAU = 0.05
	// ProximityTopCount is the size of the closest-approach ranking.
	ProximityTopCount = 10
	// RadarPointLimit caps the number of points in the radar projection.
	RadarPointLimit = 1500
)

// goldenAngle spreads consecutive indices around the circle without clustering.
var goldenAngle = math.Pi * (3 - math.Sqrt(5))

// DangerSplit counts records inside and outside the danger threshold.
type DangerSplit struct {
	Dangerous int `json:"dangerous"`
	Safe      int `json:"safe"`
}

// Total returns Dangerous + Safe.
func (d DangerSplit) Total() int {
	return d.Dangerous + d.Safe
}

// ProximityEntry is one row of the closest-approach ranking.
type ProximityEntry struct {
	Designation string  `json:"designation"`
	DistanceAU  float64 `json:"distance_au"`
}

// RadarPoint places a record on the polar radar chart. AngleRad has no
// physical meaning; it only separates points visually.
type RadarPoint struct {
	Designation string  `json:"designation"`
	DistanceAU  float64 `json:"distance_au"`
	AngleRad    float64 `json:"angle_rad"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Dangerous   bool    `json:"dangerous"`
}

// Charts bundles the three aggregations of a filtered record set.
type Charts struct {
	Danger    DangerSplit      `json:"danger_split"`
	Proximity []ProximityEntry `json:"proximity_top"`
	Radar     []RadarPoint     `json:"radar"`
}

// Aggregate derives every chart dataset from the filtered records.
func Aggregate(filtered []Record) Charts {
	return Charts{
		Danger:    Danger(filtered),
		Proximity: ProximityTopN(filtered, ProximityTopCount),
		Radar:     RadarProjection(filtered, RadarPointLimit),
	}
}

// Danger partitions records on DangerThresholdAU.
func Danger(records []Record) DangerSplit {
	var split DangerSplit
	for _, rec := range records {
		if rec.Dangerous() {
			split.Dangerous++
		} else {
			split.Safe++
		}
	}
	return split
}

// ProximityTopN returns the n closest approaches in ascending distance. Equal
// distances keep input order.
func ProximityTopN(records []Record, n int) []ProximityEntry {
	closest := nearest(records, n)
	out := make([]ProximityEntry, 0, len(closest))
	for _, rec := range closest {
		out = append(out, ProximityEntry{Designation: rec.Designation, DistanceAU: rec.DistanceAU})
	}
	return out
}

// RadarProjection projects up to limit of the closest approaches onto the
// plane. The i-th closest record gets angle i times the golden angle, so the
// output is reproducible for a given input.
func RadarProjection(records []Record, limit int) []RadarPoint {
	closest := nearest(records, limit)
	out := make([]RadarPoint, 0, len(closest))
	for i, rec := range closest {
		angle := RadarAngle(i)
		out = append(out, RadarPoint{
			Designation: rec.Designation,
			DistanceAU:  rec.DistanceAU,
			AngleRad:    angle,
			X:           rec.DistanceAU * math.Cos(angle),
			Y:           rec.DistanceAU * math.Sin(angle),
			Dangerous:   rec.Dangerous(),
		})
	}
	return out
}

// RadarAngle returns the display angle in [0, 2π) for the i-th point.
func RadarAngle(i int) float64 {
	return math.Mod(float64(i)*goldenAngle, 2*math.Pi)
}

func nearest(records []Record, n int) []Record {
	if n <= 0 || len(records) == 0 {
		return nil
	}
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Record) int {
		return cmp.Compare(a.DistanceAU, b.DistanceAU)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
