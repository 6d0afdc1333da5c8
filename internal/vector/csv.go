package vector

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beetlebugorg/footprint/pkg/footprint"
)

// AccuracyHeader is the header row written by WriteAccuracy.
var AccuracyHeader = []string{
	"unit", "total_primary", "exact_matches", "overlap_matches",
	"exact_rate", "overlap_rate", "total_rate",
}

// CorrespondenceHeader is the header row written by WriteCorrespondences.
var CorrespondenceHeader = []string{
	"unit", "primary_id", "secondary_id", "kind",
	"intersection_area", "ratio_primary", "ratio_secondary",
	"ambiguous", "alternate_ids",
}

// WriteAccuracy writes one row per record followed by the overall row.
// Rates are percentages with two decimals; undefined rates are empty.
func WriteAccuracy(w io.Writer, records []footprint.AccuracyRecord, overall footprint.AccuracyRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AccuracyHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(accuracyRow(r)); err != nil {
			return err
		}
	}
	if err := cw.Write(accuracyRow(overall)); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write accuracy csv: %w", err)
	}
	return nil
}

func accuracyRow(r footprint.AccuracyRecord) []string {
	rate := func(v float64) string {
		if r.RatesUndefined {
			return ""
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return []string{
		r.Unit,
		strconv.Itoa(r.TotalPrimary),
		strconv.Itoa(r.ExactMatches),
		strconv.Itoa(r.OverlapMatches),
		rate(r.ExactRate),
		rate(r.OverlapRate),
		rate(r.TotalRate),
	}
}

// WriteCorrespondences writes the matched pairs, one row per entry.
func WriteCorrespondences(w io.Writer, entries []footprint.CorrespondenceEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CorrespondenceHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.UnitName,
			e.PrimaryID,
			e.SecondaryID,
			e.Kind.String(),
			strconv.FormatFloat(e.IntersectionArea, 'f', -1, 64),
			strconv.FormatFloat(e.RatioPrimary, 'f', 4, 64),
			strconv.FormatFloat(e.RatioSecondary, 'f', 4, 64),
			strconv.FormatBool(e.Ambiguous),
			strings.Join(e.AlternateIDs, ";"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write correspondence csv: %w", err)
	}
	return nil
}
