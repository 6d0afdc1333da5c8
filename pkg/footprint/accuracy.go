package footprint

import (
	"sort"
)

// OverallUnitName labels the summary record returned by Overall.
const OverallUnitName = "(overall)"

// AccuracyRecord summarizes matching within one administrative unit.
// Rates are percentages of TotalPrimary.
type AccuracyRecord struct {
	Unit           string
	TotalPrimary   int
	ExactMatches   int
	OverlapMatches int
	ExactRate      float64
	OverlapRate    float64
	TotalRate      float64

	// RatesUndefined is set when TotalPrimary is 0. The rate fields are
	// then 0 and carry no meaning.
	RatesUndefined bool
}

// Matches returns the number of matched primaries of either kind.
func (r AccuracyRecord) Matches() int {
	return r.ExactMatches + r.OverlapMatches
}

// Aggregate computes one AccuracyRecord per unit, sorted by unit name.
//
// totals maps unit names to their primary population. Units named only in
// entries are included with TotalPrimary 0.
func Aggregate(totals map[string]int, entries []CorrespondenceEntry) []AccuracyRecord {
	byUnit := make(map[string]*AccuracyRecord, len(totals))
	get := func(unit string) *AccuracyRecord {
		r, ok := byUnit[unit]
		if !ok {
			r = &AccuracyRecord{Unit: unit}
			byUnit[unit] = r
		}
		return r
	}

	for unit, n := range totals {
		get(unit).TotalPrimary = n
	}
	for _, e := range entries {
		r := get(e.UnitName)
		switch e.Kind {
		case MatchExact:
			r.ExactMatches++
		case MatchOverlap:
			r.OverlapMatches++
		}
	}

	records := make([]AccuracyRecord, 0, len(byUnit))
	for _, r := range byUnit {
		r.computeRates()
		records = append(records, *r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Unit < records[j].Unit
	})
	return records
}

// Overall sums per-unit records into a single summary record.
func Overall(records []AccuracyRecord) AccuracyRecord {
	sum := AccuracyRecord{Unit: OverallUnitName}
	for _, r := range records {
		sum.TotalPrimary += r.TotalPrimary
		sum.ExactMatches += r.ExactMatches
		sum.OverlapMatches += r.OverlapMatches
	}
	sum.computeRates()
	return sum
}

func (r *AccuracyRecord) computeRates() {
	if r.TotalPrimary == 0 {
		r.RatesUndefined = true
		r.ExactRate, r.OverlapRate, r.TotalRate = 0, 0, 0
		return
	}
	total := float64(r.TotalPrimary)
	r.RatesUndefined = false
	r.ExactRate = float64(r.ExactMatches) / total * 100
	r.OverlapRate = float64(r.OverlapMatches) / total * 100
	r.TotalRate = float64(r.Matches()) / total * 100
}
