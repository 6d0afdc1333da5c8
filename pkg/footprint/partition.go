package footprint

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/footprint/internal/geom"
)

// PartitionAssignment places one building in one administrative unit.
type PartitionAssignment struct {
	BuildingID  string
	Source      Source
	UnitName    string
	OverlapArea float64 // intersection area with the chosen unit
}

// UnassignedBuilding is a building that overlaps no administrative unit.
// It takes no part in matching.
type UnassignedBuilding struct {
	ID     string
	Source Source
}

// PartitionResult is the output of Partition.
type PartitionResult struct {
	// Assignments are in input order, one per assigned building.
	Assignments []PartitionAssignment

	// Unassigned lists buildings with zero overlap with every unit.
	Unassigned []UnassignedBuilding

	// Issues lists buildings and unit boundaries excluded because of
	// malformed geometry.
	Issues []GeometryError
}

// preparedUnit is a unit boundary converted for geometric tests.
type preparedUnit struct {
	name  string
	shape *geom.Shape
}

// Partition assigns each building to the administrative unit it overlaps
// most.
//
// For every building, the intersection area with each unit whose bounding
// box intersects the building's is computed. The unit with the largest
// area wins; areas equal within opts.AreaTolerance (relative) are tied and
// resolved in favour of the lexicographically smallest unit name. A
// building whose largest overlap is zero is reported in Unassigned.
//
// Buildings from both datasets may be passed together; assignments are
// keyed by (ID, Source). Unit names must be unique and non-empty, building
// IDs non-empty: violations return a *SchemaError. Malformed geometries do
// not fail the call; they are reported in Issues.
//
// Example:
//
//	res, err := footprint.Partition(buildings, towns, footprint.DefaultPartitionOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, a := range res.Assignments {
//	    fmt.Printf("%s is in %s\n", a.BuildingID, a.UnitName)
//	}
//	fmt.Printf("%d buildings outside every unit\n", len(res.Unassigned))
func Partition(buildings []BuildingRecord, units []AdministrativeUnit, opts PartitionOptions) (*PartitionResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateUnits(units); err != nil {
		return nil, err
	}
	for i := range buildings {
		if buildings[i].ID == "" {
			return nil, &SchemaError{Source: buildings[i].Source, Index: i, Reason: "missing id"}
		}
	}

	result := &PartitionResult{
		Assignments: make([]PartitionAssignment, 0, len(buildings)),
	}

	kernel := geom.NewKernel()

	prepared := prepareUnits(kernel, units, result)
	defer func() {
		for _, u := range prepared {
			u.shape.Release()
		}
	}()

	unitBounds := make([]orb.Bound, len(prepared))
	for i, u := range prepared {
		unitBounds[i] = u.shape.Bound()
	}
	index := buildCandidateIndex(unitBounds, opts.indexMinSize())

	for i := range buildings {
		b := &buildings[i]

		shape, err := kernel.Prepare(b.Geometry)
		if err != nil {
			result.Issues = append(result.Issues, GeometryError{ID: b.ID, Source: b.Source, Err: err})
			continue
		}

		best, area, err := bestUnit(shape, prepared, index, opts.AreaTolerance)
		shape.Release()
		if err != nil {
			result.Issues = append(result.Issues, GeometryError{ID: b.ID, Source: b.Source, Err: err})
			continue
		}

		if best < 0 {
			result.Unassigned = append(result.Unassigned, UnassignedBuilding{ID: b.ID, Source: b.Source})
			continue
		}

		result.Assignments = append(result.Assignments, PartitionAssignment{
			BuildingID:  b.ID,
			Source:      b.Source,
			UnitName:    prepared[best].name,
			OverlapArea: area,
		})
	}

	return result, nil
}

// prepareUnits converts unit boundaries, sorted by name. Units with
// malformed boundaries are reported and left out.
func prepareUnits(kernel *geom.Kernel, units []AdministrativeUnit, result *PartitionResult) []preparedUnit {
	sorted := make([]*AdministrativeUnit, len(units))
	for i := range units {
		sorted[i] = &units[i]
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	prepared := make([]preparedUnit, 0, len(sorted))
	for _, u := range sorted {
		shape, err := kernel.Prepare(u.Boundary)
		if err != nil {
			result.Issues = append(result.Issues, GeometryError{ID: u.Name, Err: err})
			continue
		}
		prepared = append(prepared, preparedUnit{name: u.Name, shape: shape})
	}
	return prepared
}

// bestUnit returns the position in units of the unit with the largest
// intersection with shape, and that area. It returns -1 when no unit has a
// positive intersection.
//
// units is sorted by name and candidates come back in ascending position,
// so keeping the incumbent on a tie keeps the smallest name.
func bestUnit(shape *geom.Shape, units []preparedUnit, index candidateIndex, tolerance float64) (int, float64, error) {
	best := -1
	bestArea := 0.0

	for _, pos := range index.candidates(shape.Bound()) {
		area, err := shape.IntersectionArea(units[pos].shape)
		if err != nil {
			return -1, 0, fmt.Errorf("intersect with unit %q: %w", units[pos].name, err)
		}
		if area <= 0 {
			continue
		}
		if best < 0 || (area > bestArea && !areasTied(area, bestArea, tolerance)) {
			best = pos
			bestArea = area
		}
	}

	return best, bestArea, nil
}

// areasTied reports whether a and b are equal within a relative tolerance.
func areasTied(a, b, tolerance float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tolerance*scale
}

// UnitTotals counts primary assignments per unit. Every unit in units
// appears in the result, with 0 when no primary building was assigned to it.
func UnitTotals(assignments []PartitionAssignment, units []AdministrativeUnit) map[string]int {
	totals := make(map[string]int, len(units))
	for _, u := range units {
		totals[u.Name] = 0
	}
	for _, a := range assignments {
		if a.Source == SourcePrimary {
			totals[a.UnitName]++
		}
	}
	return totals
}
