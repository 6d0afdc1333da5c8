package footprint

import (
	"context"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/footprint/internal/geom"
)

// MatchKind records which stage established a correspondence.
type MatchKind int

const (
	// MatchExact pairs polygons that are geometrically identical.
	MatchExact MatchKind = 1

	// MatchOverlap pairs polygons whose mutual overlap ratios both reach
	// the configured threshold.
	MatchOverlap MatchKind = 2
)

// String returns the export name of the kind.
func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "EXACT"
	case MatchOverlap:
		return "OVERLAP"
	default:
		return "UNKNOWN"
	}
}

// CorrespondenceEntry pairs a primary and a secondary building that
// represent the same physical building within one unit.
type CorrespondenceEntry struct {
	PrimaryID   string
	SecondaryID string
	UnitName    string
	Kind        MatchKind

	// IntersectionArea is the shared area. For exact matches it equals
	// the primary's area.
	IntersectionArea float64

	// RatioPrimary and RatioSecondary are IntersectionArea divided by the
	// primary's and the secondary's own area. Both are 1 for exact matches.
	RatioPrimary   float64
	RatioSecondary float64

	// Ambiguous is set when more than one secondary was geometrically
	// equal to the primary. The lowest secondary ID was chosen; the other
	// candidates are listed in AlternateIDs.
	Ambiguous    bool
	AlternateIDs []string
}

// UnitMatch is the matching result for one administrative unit.
type UnitMatch struct {
	Unit string

	// Entries holds exact matches followed by overlap matches, each in
	// ascending primary ID order.
	Entries []CorrespondenceEntry

	// Issues lists records excluded from matching because of geometry
	// errors.
	Issues []GeometryError

	PrimaryCount   int
	SecondaryCount int
}

// Count returns the number of entries of the given kind.
func (m *UnitMatch) Count(kind MatchKind) int {
	n := 0
	for i := range m.Entries {
		if m.Entries[i].Kind == kind {
			n++
		}
	}
	return n
}

// candidate is a record prepared for matching.
type candidate struct {
	rec      *BuildingRecord
	shape    *geom.Shape
	matched  bool
	excluded bool // a geometric operation on this record failed
}

// Match establishes correspondences between the primary and secondary
// buildings of a single administrative unit.
//
// Stage 1 pairs each primary, in ascending ID order, with an unconsumed
// secondary whose polygon is geometrically equal to it. When several
// secondaries are equal, the lowest ID is chosen and the entry is flagged
// Ambiguous. Matched records leave the pool.
//
// Stage 2 considers the remaining records. A pair qualifies when the
// intersection covers at least opts.OverlapThreshold of the primary's area
// and of the secondary's area. Each remaining primary, in ascending ID
// order, takes the qualifying unconsumed secondary with the largest
// intersection; ties go to the lowest secondary ID.
//
// Records with malformed geometry are excluded and reported in Issues.
// ctx is checked between primary records; on cancellation Match returns
// ctx.Err().
//
// Example:
//
//	opts := footprint.DefaultMatchOptions()
//	opts.OverlapThreshold = 0.8
//
//	m, err := footprint.Match(ctx, "Hongo 1", kiban, plateau, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range m.Entries {
//	    fmt.Printf("%s -> %s (%s, %.2f)\n", e.PrimaryID, e.SecondaryID, e.Kind, e.RatioPrimary)
//	}
func Match(ctx context.Context, unit string, primary, secondary []BuildingRecord, opts MatchOptions) (*UnitMatch, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ValidatePopulation(primary, SourcePrimary); err != nil {
		return nil, err
	}
	if err := ValidatePopulation(secondary, SourceSecondary); err != nil {
		return nil, err
	}

	result := &UnitMatch{
		Unit:           unit,
		PrimaryCount:   len(primary),
		SecondaryCount: len(secondary),
	}

	kernel := geom.NewKernel()
	ps := prepareCandidates(kernel, unit, primary, result)
	ss := prepareCandidates(kernel, unit, secondary, result)
	defer releaseCandidates(ps)
	defer releaseCandidates(ss)

	index := buildCandidateIndex(candidateBounds(ss), opts.indexMinSize())

	exact, err := matchExact(ctx, unit, ps, ss, index, result)
	if err != nil {
		return nil, err
	}

	overlap, err := matchOverlap(ctx, unit, ps, ss, index, opts.OverlapThreshold, result)
	if err != nil {
		return nil, err
	}

	result.Entries = append(exact, overlap...)
	return result, nil
}

// prepareCandidates sorts records by ID and prepares their shapes.
// Records with malformed geometry are reported in result.Issues and left out.
func prepareCandidates(kernel *geom.Kernel, unit string, records []BuildingRecord, result *UnitMatch) []*candidate {
	sorted := make([]*BuildingRecord, len(records))
	for i := range records {
		sorted[i] = &records[i]
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]*candidate, 0, len(sorted))
	for _, r := range sorted {
		shape, err := kernel.Prepare(r.Geometry)
		if err != nil {
			result.Issues = append(result.Issues, GeometryError{ID: r.ID, Source: r.Source, Unit: unit, Err: err})
			continue
		}
		out = append(out, &candidate{rec: r, shape: shape})
	}
	return out
}

func candidateBounds(cs []*candidate) []orb.Bound {
	bounds := make([]orb.Bound, len(cs))
	for i, c := range cs {
		bounds[i] = c.shape.Bound()
	}
	return bounds
}

func releaseCandidates(cs []*candidate) {
	for _, c := range cs {
		c.shape.Release()
	}
}

// matchExact runs Stage 1. Running it again over the same candidates
// finds nothing new: matched records are skipped and every primary left
// unmatched had no unconsumed equal secondary.
func matchExact(ctx context.Context, unit string, ps, ss []*candidate, index candidateIndex, result *UnitMatch) ([]CorrespondenceEntry, error) {
	var entries []CorrespondenceEntry

	for _, p := range ps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.matched || p.excluded {
			continue
		}

		var hits []int
		for _, pos := range index.candidates(p.shape.Bound()) {
			s := ss[pos]
			if s.matched || s.excluded {
				continue
			}
			equal, err := p.shape.Equals(s.shape)
			if err != nil {
				excludeCandidate(p, unit, fmt.Errorf("equals %q: %w", s.rec.ID, err), result)
				break
			}
			if equal {
				hits = append(hits, pos)
			}
		}
		if p.excluded || len(hits) == 0 {
			continue
		}

		s := ss[hits[0]]
		p.matched = true
		s.matched = true

		entry := CorrespondenceEntry{
			PrimaryID:        p.rec.ID,
			SecondaryID:      s.rec.ID,
			UnitName:         unit,
			Kind:             MatchExact,
			IntersectionArea: p.shape.Area(),
			RatioPrimary:     1,
			RatioSecondary:   1,
		}
		if len(hits) > 1 {
			entry.Ambiguous = true
			entry.AlternateIDs = make([]string, 0, len(hits)-1)
			for _, pos := range hits[1:] {
				entry.AlternateIDs = append(entry.AlternateIDs, ss[pos].rec.ID)
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// matchOverlap runs Stage 2 over the records Stage 1 left unmatched.
func matchOverlap(ctx context.Context, unit string, ps, ss []*candidate, index candidateIndex, threshold float64, result *UnitMatch) ([]CorrespondenceEntry, error) {
	var entries []CorrespondenceEntry

	for _, p := range ps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.matched || p.excluded {
			continue
		}

		best := -1
		var bestArea, bestRatioP, bestRatioS float64

		for _, pos := range index.candidates(p.shape.Bound()) {
			s := ss[pos]
			if s.matched || s.excluded {
				continue
			}

			area, err := p.shape.IntersectionArea(s.shape)
			if err != nil {
				excludeCandidate(p, unit, fmt.Errorf("intersect %q: %w", s.rec.ID, err), result)
				break
			}
			if area <= 0 {
				continue
			}

			ratioP := area / p.shape.Area()
			ratioS := area / s.shape.Area()
			if ratioP < threshold || ratioS < threshold {
				continue
			}

			// Candidates arrive in ascending ID order; strict > keeps the
			// lowest ID on equal areas
			if best < 0 || area > bestArea {
				best = pos
				bestArea = area
				bestRatioP = ratioP
				bestRatioS = ratioS
			}
		}
		if p.excluded || best < 0 {
			continue
		}

		s := ss[best]
		p.matched = true
		s.matched = true

		entries = append(entries, CorrespondenceEntry{
			PrimaryID:        p.rec.ID,
			SecondaryID:      s.rec.ID,
			UnitName:         unit,
			Kind:             MatchOverlap,
			IntersectionArea: bestArea,
			RatioPrimary:     bestRatioP,
			RatioSecondary:   bestRatioS,
		})
	}

	return entries, nil
}

func excludeCandidate(c *candidate, unit string, err error, result *UnitMatch) {
	c.excluded = true
	result.Issues = append(result.Issues, GeometryError{
		ID:     c.rec.ID,
		Source: c.rec.Source,
		Unit:   unit,
		Err:    err,
	})
}
