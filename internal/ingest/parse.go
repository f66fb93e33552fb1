package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/neotracker/neotracker/internal/catalog"
)

// approachLayout is the CAD API calendar date format, always UTC.
const approachLayout = "2006-Jan-02 15:04"

// Positions used by the CAD API when the field list is missing.
var defaultColumns = columns{des: 0, cd: 3, dist: 4, vRel: 7, h: 10}

type columns struct {
	des, cd, dist, vRel, h int
}

func resolveColumns(fields []string) columns {
	if len(fields) == 0 {
		return defaultColumns
	}
	cols := columns{des: -1, cd: -1, dist: -1, vRel: -1, h: -1}
	for i, name := range fields {
		switch strings.TrimSpace(name) {
		case "des":
			cols.des = i
		case "cd":
			cols.cd = i
		case "dist":
			cols.dist = i
		case "v_rel":
			cols.vRel = i
		case "h":
			cols.h = i
		}
	}
	return cols
}

// Records converts the payload rows into validated catalog records. Rows that
// cannot be parsed or break the record invariants are returned as rejections.
func (p *Payload) Records() ([]catalog.Record, []error) {
	if p == nil {
		return nil, nil
	}
	cols := resolveColumns(p.Fields)
	parsed := make([]catalog.Record, 0, len(p.Data))
	var rejected []error
	for i, row := range p.Data {
		rec, err := parseRow(row, cols)
		if err != nil {
			rejected = append(rejected, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		parsed = append(parsed, rec)
	}
	valid, invalid := catalog.Sanitize(parsed)
	return valid, append(rejected, invalid...)
}

func parseRow(row []*string, cols columns) (catalog.Record, error) {
	des, err := cell(row, cols.des, "des")
	if err != nil {
		return catalog.Record{}, err
	}
	cd, err := cell(row, cols.cd, "cd")
	if err != nil {
		return catalog.Record{}, err
	}
	approach, err := time.ParseInLocation(approachLayout, cd, time.UTC)
	if err != nil {
		return catalog.Record{}, &catalog.ValidationError{Field: "cd", Reason: err.Error()}
	}
	dist, err := floatCell(row, cols.dist, "dist")
	if err != nil {
		return catalog.Record{}, err
	}
	vRel, err := floatCell(row, cols.vRel, "v_rel")
	if err != nil {
		return catalog.Record{}, err
	}
	rec := catalog.Record{
		Designation:  strings.TrimSpace(des),
		ApproachTime: approach,
		DistanceAU:   dist,
		VelocityKmS:  vRel,
	}
	// Absolute magnitude is often missing for freshly discovered objects.
	if h, err := floatCell(row, cols.h, "h"); err == nil {
		rec.AbsoluteMagnitude = &h
	}
	return rec, nil
}

func cell(row []*string, idx int, name string) (string, error) {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return "", &catalog.ValidationError{Field: name, Reason: "missing"}
	}
	return *row[idx], nil
}

func floatCell(row []*string, idx int, name string) (float64, error) {
	raw, err := cell(row, idx, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &catalog.ValidationError{Field: name, Reason: "not a number"}
	}
	return v, nil
}
