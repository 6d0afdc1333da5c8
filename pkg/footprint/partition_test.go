package footprint

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionLargestOverlapWins(t *testing.T) {
	units := []AdministrativeUnit{
		{Name: "A", Boundary: rect(-10, -10, 4, 20)}, // overlap 40
		{Name: "B", Boundary: rect(4, -10, 20, 20)},  // overlap 60
	}
	buildings := []BuildingRecord{primaryRec("p1", rect(0, 0, 10, 10))}

	res, err := Partition(buildings, units, DefaultPartitionOptions())
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)

	a := res.Assignments[0]
	assert.Equal(t, "p1", a.BuildingID)
	assert.Equal(t, SourcePrimary, a.Source)
	assert.Equal(t, "B", a.UnitName)
	assert.InDelta(t, 60.0, a.OverlapArea, 1e-9)
	assert.Empty(t, res.Unassigned)
}

func TestPartitionTieGoesToSmallestName(t *testing.T) {
	units := []AdministrativeUnit{
		{Name: "Kita", Boundary: rect(5, -10, 20, 20)},
		{Name: "Higashi", Boundary: rect(-10, -10, 5, 20)},
	}
	buildings := []BuildingRecord{primaryRec("p1", rect(0, 0, 10, 10))}

	res, err := Partition(buildings, units, DefaultPartitionOptions())
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, "Higashi", res.Assignments[0].UnitName)
}

func TestPartitionUnassigned(t *testing.T) {
	units := []AdministrativeUnit{{Name: "A", Boundary: rect(0, 0, 10, 10)}}
	buildings := []BuildingRecord{
		primaryRec("far", rect(100, 100, 110, 110)),
		primaryRec("touching", rect(10, 0, 20, 10)),
		secondaryRec("inside", rect(1, 1, 2, 2), nil),
	}

	res, err := Partition(buildings, units, DefaultPartitionOptions())
	require.NoError(t, err)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, "inside", res.Assignments[0].BuildingID)
	assert.Equal(t, SourceSecondary, res.Assignments[0].Source)

	assert.Equal(t, []UnassignedBuilding{
		{ID: "far", Source: SourcePrimary},
		{ID: "touching", Source: SourcePrimary},
	}, res.Unassigned)
}

func TestPartitionSameIDAcrossSources(t *testing.T) {
	units := []AdministrativeUnit{
		{Name: "A", Boundary: rect(0, 0, 10, 10)},
		{Name: "B", Boundary: rect(10, 0, 20, 10)},
	}
	buildings := []BuildingRecord{
		primaryRec("x", rect(1, 1, 2, 2)),
		secondaryRec("x", rect(11, 1, 12, 2), nil),
	}

	res, err := Partition(buildings, units, DefaultPartitionOptions())
	require.NoError(t, err)
	require.Len(t, res.Assignments, 2)
	assert.Equal(t, "A", res.Assignments[0].UnitName)
	assert.Equal(t, "B", res.Assignments[1].UnitName)
}

func TestPartitionReportsInvalidGeometry(t *testing.T) {
	units := []AdministrativeUnit{
		{Name: "A", Boundary: rect(0, 0, 10, 10)},
		{Name: "Broken", Boundary: bowtie()},
	}
	buildings := []BuildingRecord{
		primaryRec("bad", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}}}),
		primaryRec("good", rect(1, 1, 2, 2)),
	}

	res, err := Partition(buildings, units, DefaultPartitionOptions())
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, "good", res.Assignments[0].BuildingID)

	require.Len(t, res.Issues, 2)
	assert.Equal(t, "Broken", res.Issues[0].ID)
	assert.Equal(t, SourceUnknown, res.Issues[0].Source)
	assert.Equal(t, "bad", res.Issues[1].ID)
	assert.Equal(t, SourcePrimary, res.Issues[1].Source)
}

func TestPartitionChoosesMaximumOverlap(t *testing.T) {
	// A 3x3 grid of units; every building must land in the unit with the
	// largest intersection
	var units []AdministrativeUnit
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			x, y := float64(i*10), float64(j*10)
			units = append(units, AdministrativeUnit{
				Name:     string(rune('a'+i)) + string(rune('0'+j)),
				Boundary: rect(x, y, x+10, y+10),
			})
		}
	}

	buildings, _ := randomPopulations(3, 30)
	for i := range buildings {
		// shift into the grid so buildings straddle unit edges
		for k := range buildings[i].Geometry[0] {
			buildings[i].Geometry[0][k][0] = buildings[i].Geometry[0][k][0]*0.3 + 1
			buildings[i].Geometry[0][k][1] = buildings[i].Geometry[0][k][1]*0.3 + 1
		}
	}

	res, err := Partition(buildings, units, PartitionOptions{IndexMinSize: 1})
	require.NoError(t, err)
	require.Len(t, res.Assignments, len(buildings))

	for _, a := range res.Assignments {
		var b orb.Polygon
		for _, rec := range buildings {
			if rec.ID == a.BuildingID {
				b = rec.Geometry
			}
		}
		for _, u := range units {
			bb, ub := b.Bound(), u.Boundary.Bound()
			w := math.Min(bb.Max[0], ub.Max[0]) - math.Max(bb.Min[0], ub.Min[0])
			h := math.Min(bb.Max[1], ub.Max[1]) - math.Max(bb.Min[1], ub.Min[1])
			if w <= 0 || h <= 0 {
				continue
			}
			area := w * h
			assert.GreaterOrEqual(t, a.OverlapArea+1e-9, area, "building %s unit %s", a.BuildingID, u.Name)
		}
	}
}

func TestPartitionSchemaErrors(t *testing.T) {
	tests := []struct {
		name      string
		buildings []BuildingRecord
		units     []AdministrativeUnit
	}{
		{
			name:  "duplicate unit name",
			units: []AdministrativeUnit{{Name: "A", Boundary: rect(0, 0, 1, 1)}, {Name: "A", Boundary: rect(1, 0, 2, 1)}},
		},
		{
			name:  "empty unit name",
			units: []AdministrativeUnit{{Boundary: rect(0, 0, 1, 1)}},
		},
		{
			name:      "empty building id",
			buildings: []BuildingRecord{primaryRec("", rect(0, 0, 1, 1))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Partition(tt.buildings, tt.units, DefaultPartitionOptions())
			var schemaErr *SchemaError
			assert.True(t, errors.As(err, &schemaErr), "got %v", err)
		})
	}
}

func TestUnitTotals(t *testing.T) {
	units := []AdministrativeUnit{{Name: "A"}, {Name: "B"}, {Name: "Empty"}}
	assignments := []PartitionAssignment{
		{BuildingID: "p1", Source: SourcePrimary, UnitName: "A"},
		{BuildingID: "p2", Source: SourcePrimary, UnitName: "A"},
		{BuildingID: "p3", Source: SourcePrimary, UnitName: "B"},
		{BuildingID: "s1", Source: SourceSecondary, UnitName: "B"},
	}

	assert.Equal(t, map[string]int{"A": 2, "B": 1, "Empty": 0}, UnitTotals(assignments, units))
}
