package geom

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ValidatePolygon checks the structural rules a footprint must satisfy
// before it is handed to GEOS: at least one ring, every ring closed with
// four or more points, and finite coordinates. Self-intersection is
// detected later by GEOS in Kernel.Prepare.
func ValidatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return &ErrInvalidGeometry{Reason: "polygon is empty"}
	}

	for i, ring := range p {
		if err := validateRing(ring); err != nil {
			if i == 0 {
				return &ErrInvalidGeometry{Reason: fmt.Sprintf("exterior ring: %s", err)}
			}
			return &ErrInvalidGeometry{Reason: fmt.Sprintf("interior ring %d: %s", i, err)}
		}
	}

	return nil
}

func validateRing(ring orb.Ring) error {
	// A closed triangle needs 4 points (first == last)
	if len(ring) < 4 {
		return fmt.Errorf("ring has %d points, need at least 4", len(ring))
	}

	for i, pt := range ring {
		if !isFinite(pt[0]) || !isFinite(pt[1]) {
			return fmt.Errorf("coordinate %d is not finite: [%v, %v]", i, pt[0], pt[1])
		}
	}

	if !ring.Closed() {
		first, last := ring[0], ring[len(ring)-1]
		return fmt.Errorf("ring is not closed: first [%v, %v] != last [%v, %v]",
			first[0], first[1], last[0], last[1])
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
