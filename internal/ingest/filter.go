// Package ingest prepares building populations before reconciliation.
package ingest

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/beetlebugorg/footprint/pkg/footprint"
)

// ErrFieldMissing is returned by FilterByMaxYear when no record carries
// the year field at all. The records are returned unfiltered.
var ErrFieldMissing = errors.New("year field not present on any record")

// FilterStats summarizes a filter pass.
type FilterStats struct {
	Kept    int
	Dropped int

	// Unparsable counts dropped records whose year was absent, unknown or
	// not a number.
	Unparsable int
}

// FilterByMaxYear keeps the records whose field, read as a number, is at
// most maxYear. Strings are parsed as decimal numbers; records with an
// absent, unknown or non-numeric year are dropped.
//
// If no record has field, the input is returned as is together with
// ErrFieldMissing. The input slice is never modified.
func FilterByMaxYear(records []footprint.BuildingRecord, field string, maxYear int) ([]footprint.BuildingRecord, FilterStats, error) {
	present := false
	for i := range records {
		if _, ok := records[i].Attributes.Get(field); ok {
			present = true
			break
		}
	}
	if !present {
		return records, FilterStats{Kept: len(records)}, ErrFieldMissing
	}

	var stats FilterStats
	kept := make([]footprint.BuildingRecord, 0, len(records))
	for i := range records {
		year, ok := YearOf(records[i].Attributes, field)
		if !ok {
			stats.Dropped++
			stats.Unparsable++
			continue
		}
		if year > float64(maxYear) {
			stats.Dropped++
			continue
		}
		kept = append(kept, records[i])
	}
	stats.Kept = len(kept)
	return kept, stats, nil
}

// YearOf reads field from attrs as a number.
func YearOf(attrs footprint.Attributes, field string) (float64, bool) {
	v, ok := attrs.Get(field)
	if !ok {
		return 0, false
	}
	if n, ok := v.Number(); ok {
		return n, !math.IsNaN(n)
	}
	s, ok := v.Str()
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
